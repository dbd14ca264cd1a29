package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/eligo/internal/browser"
	"github.com/ternarybob/eligo/internal/interfaces"
	"github.com/ternarybob/eligo/internal/models"
)

var (
	profileIDPattern  = regexp.MustCompile(`"profile_id":"(\d+)"`)
	fallbackIDPattern = regexp.MustCompile(`"id":"(\d+)"`)
)

// Verifier decides whether a candidate follows every required account.
type Verifier struct {
	driver  interfaces.PageDriver
	limiter *rate.Limiter
	poll    browser.Poll
	logger  arbor.ILogger
	log     LogSink
}

// NewVerifier creates a verifier over an already-launched driver. checkDelay
// paces the per-competitor queries; it is a throughput/safety trade-off
// against anti-automation defenses, not a correctness requirement.
func NewVerifier(driver interfaces.PageDriver, checkDelay time.Duration, logger arbor.ILogger, log LogSink) *Verifier {
	if log == nil {
		log = discard
	}
	if checkDelay <= 0 {
		checkDelay = time.Second
	}
	return &Verifier{
		driver:  driver,
		limiter: rate.NewLimiter(rate.Every(checkDelay), 1),
		poll:    browser.Poll{MaxAttempts: 2, Delay: 500 * time.Millisecond},
		logger:  logger,
		log:     log,
	}
}

// Verify checks the candidate against every competitor. All competitors are
// always probed so the log stream is complete; the decision is the AND across
// all checks. Every error is contained into a not-qualified result, never an
// aborted run.
func (v *Verifier) Verify(ctx context.Context, candidate string, competitors []string) models.QualificationResult {
	result := models.QualificationResult{Candidate: candidate}

	profileURL := fmt.Sprintf("%s/%s/", instagramBaseURL, candidate)
	if err := v.driver.Navigate(ctx, profileURL); err != nil {
		v.log(fmt.Sprintf("      Error analyzing user: %v", err))
		result.Reason = models.ReasonError
		return result
	}

	isPrivate, err := v.profileIsPrivate(ctx)
	if err != nil {
		v.log(fmt.Sprintf("      Error analyzing user: %v", err))
		result.Reason = models.ReasonError
		return result
	}
	if isPrivate {
		v.log("      (Private)")
		result.Reason = models.ReasonPrivateAccount
		return result
	}

	userID, err := v.lookupUserID(ctx)
	if err != nil {
		v.log(fmt.Sprintf("      Could not determine user ID for @%s", candidate))
		result.Reason = models.ReasonNoIdentifier
		return result
	}

	csrfToken := v.csrfToken(ctx)

	matched := 0
	for _, competitor := range competitors {
		v.log(fmt.Sprintf("      Checking follow for: %s...", competitor))

		if err := v.limiter.Wait(ctx); err != nil {
			result.Reason = models.ReasonError
			return result
		}

		follows := v.followsCompetitor(ctx, userID, competitor, csrfToken)
		if follows {
			matched++
			v.log(fmt.Sprintf("      Found follow for %s", competitor))
		} else {
			result.Missing = append(result.Missing, competitor)
			v.log(fmt.Sprintf("      No follow found for %s", competitor))
		}
	}

	switch {
	case matched == len(competitors):
		result.Qualifies = true
		result.Reason = models.ReasonFullMatch
	case matched > 0:
		result.Reason = models.ReasonPartialMatch
	default:
		result.Reason = models.ReasonNoMatch
	}

	return result
}

// profileIsPrivate checks for the private-account marker on the loaded page.
func (v *Verifier) profileIsPrivate(ctx context.Context) (bool, error) {
	var isPrivate bool
	expr := `document.body.innerText.includes('This account is private')`
	if err := v.driver.Evaluate(ctx, expr, &isPrivate); err != nil {
		return false, err
	}
	return isPrivate, nil
}

// lookupUserID scrapes the numeric account ID out of the profile page's
// embedded state blobs.
func (v *Verifier) lookupUserID(ctx context.Context) (string, error) {
	html, err := v.driver.HTML(ctx, "html")
	if err != nil {
		return "", err
	}

	if match := profileIDPattern.FindStringSubmatch(html); match != nil {
		return match[1], nil
	}
	if match := fallbackIDPattern.FindStringSubmatch(html); match != nil {
		return match[1], nil
	}
	return "", fmt.Errorf("no profile id in page")
}

// csrfToken pulls the session CSRF token from cookies; empty means the header
// is simply omitted.
func (v *Verifier) csrfToken(ctx context.Context) string {
	cookies, err := v.driver.Cookies(ctx)
	if err != nil {
		v.logger.Debug().Err(err).Msg("Cookie read failed, proceeding without CSRF token")
		return ""
	}
	for _, c := range cookies {
		if c.Name == "csrftoken" {
			return c.Value
		}
	}
	return ""
}

// followsCompetitor searches the candidate's following list for the
// competitor and confirms an exact case-insensitive match. The search term is
// truncated for long names; only the exact-match confirmation decides.
func (v *Verifier) followsCompetitor(ctx context.Context, userID, competitor, csrfToken string) bool {
	queryTerm := competitor
	if len(queryTerm) > queryTruncation {
		queryTerm = queryTerm[:queryTruncation]
	}

	var usernames []string
	err := v.poll.Until(ctx, v.logger, "following search", func(ctx context.Context) (bool, error) {
		raw, err := v.queryFollowing(ctx, userID, queryTerm, csrfToken)
		if err != nil {
			return false, nil // transient; retry within the poll budget
		}
		usernames = raw
		return true, nil
	})
	if err != nil {
		v.logger.Debug().
			Err(err).
			Str("competitor", competitor).
			Msg("Following search never returned results")
		return false
	}

	for _, username := range usernames {
		if strings.EqualFold(username, competitor) {
			return true
		}
	}
	return false
}

// queryFollowing runs the following-list search inside the authenticated page
// so the request carries the session's cookies and headers.
func (v *Verifier) queryFollowing(ctx context.Context, userID, queryTerm, csrfToken string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/friendships/%s/following/?query=%s",
		instagramBaseURL, userID, url.QueryEscape(queryTerm))

	expr := fmt.Sprintf(`(async () => {
		const headers = {
			'X-Requested-With': 'XMLHttpRequest',
			'X-IG-App-ID': %q,
		};
		if (%q) headers['X-CSRFToken'] = %q;
		const response = await fetch(%q, { headers });
		const data = await response.json();
		return JSON.stringify((data.users || []).map(u => u.username));
	})()`, webAppID, csrfToken, csrfToken, endpoint)

	var payload string
	if err := v.driver.Evaluate(ctx, expr, &payload); err != nil {
		return nil, err
	}

	var usernames []string
	if err := json.Unmarshal([]byte(payload), &usernames); err != nil {
		return nil, fmt.Errorf("decode following response: %w", err)
	}
	return usernames, nil
}
