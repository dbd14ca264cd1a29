package analyzer

// LogSink receives human-readable progress lines for one run. Sinks are
// fire-and-forget and must never fail the run.
type LogSink func(message string)

// discard is used when no sink is supplied.
func discard(string) {}

const (
	// instagramBaseURL is the web root all navigation is relative to.
	instagramBaseURL = "https://www.instagram.com"

	// webAppID is the standard Instagram web application ID sent with
	// in-page API requests.
	webAppID = "936619743392459"

	// mentionThreshold is the engagement rule: a comment qualifies its
	// author when at least this many distinct other users are tagged,
	// after removing the author and every competitor.
	mentionThreshold = 2

	// minCommentLength filters trivially short comment text before any
	// parsing work happens.
	minCommentLength = 5

	// maxAuthorAncestry bounds the DOM ancestry walk when resolving a
	// comment's author. The walk also stops when it exits the comment
	// list (a UL boundary).
	maxAuthorAncestry = 6

	// queryTruncation caps the search term sent to the following-list
	// endpoint; long usernames match more reliably on a prefix.
	queryTruncation = 12
)

// loadMoreSelector is the control that reveals another page of comments.
const loadMoreSelector = `svg[aria-label="Load more comments"]`

// commentSpanSelector matches the text node of one rendered comment.
const commentSpanSelector = `div.html-div span[dir="auto"]`

// loginInputSelector is present only when the login form is shown.
const loginInputSelector = `input[name="username"]`

// loggedInSelectors indicate an authenticated session, any one suffices.
var loggedInSelectors = []string{
	`svg[aria-label="Home"]`,
	`svg[aria-label="Search"]`,
	`a[href="/explore/"]`,
}

// reservedPaths are site sections whose profile-shaped links are not users.
var reservedPaths = map[string]bool{
	"explore":  true,
	"reels":    true,
	"stories":  true,
	"accounts": true,
	"direct":   true,
	"create":   true,
	"legal":    true,
}
