package interfaces

import (
	"context"

	"github.com/ternarybob/eligo/internal/models"
)

// RunStorage persists terminal run records for history and stats.
type RunStorage interface {
	SaveRun(ctx context.Context, record *models.RunRecord) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}
