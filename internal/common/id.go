package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewInstanceID generates a server instance identifier. Clients compare it
// across reconnects to detect a server restart.
func NewInstanceID() string {
	return uuid.New().String()
}
