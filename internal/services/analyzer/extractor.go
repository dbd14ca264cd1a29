package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/eligo/internal/interfaces"
)

// clickLoadMoreJS clicks the nearest button wrapping the load-more control.
const clickLoadMoreJS = `(() => {
	const svg = document.querySelector('svg[aria-label="Load more comments"]');
	if (!svg) return false;
	const btn = svg.closest('button') || svg.parentElement;
	if (!btn) return false;
	btn.click();
	return true;
})()`

// scrollCommentPaneJS scrolls the comment container by one viewport-ish step.
// The pane has no stable selector, so it is located by layout position first
// and by an ancestor scan around known comment nodes as a fallback. Returns
// whether anything scrolled.
const scrollCommentPaneJS = `(() => {
	const byXPath = (xp) => document.evaluate(xp, document, null, 9, null).singleNodeValue;
	let container = byXPath('//main/div/div[1]/div/div[2]/div/div[2]');
	if (!container || container.scrollHeight <= container.clientHeight) {
		container = byXPath('//main/div/div[1]/div/div[2]/div/div[2]/div');
	}
	if (container && container.scrollHeight > container.clientHeight) {
		container.scrollBy(0, 1000);
		container.dispatchEvent(new Event('scroll'));
		return true;
	}
	const start = document.querySelector('svg[aria-label="Load more comments"]')
		|| document.querySelector('div.html-div span[dir="auto"]');
	if (start) {
		let curr = start.parentElement;
		while (curr && curr.tagName !== 'BODY') {
			if (curr.scrollHeight > curr.clientHeight && curr.querySelectorAll('div.html-div').length > 5) {
				curr.scrollBy(0, 1000);
				curr.dispatchEvent(new Event('scroll'));
				return true;
			}
			curr = curr.parentElement;
		}
	}
	return false;
})()`

// Extractor finds qualifying candidate usernames in a post's comment thread.
type Extractor struct {
	driver          interfaces.PageDriver
	maxLoadAttempts int
	settleDelay     time.Duration
	logger          arbor.ILogger
	log             LogSink
}

// NewExtractor creates an extractor over an already-launched driver
func NewExtractor(driver interfaces.PageDriver, maxLoadAttempts int, settleDelay time.Duration, logger arbor.ILogger, log LogSink) *Extractor {
	if log == nil {
		log = discard
	}
	return &Extractor{
		driver:          driver,
		maxLoadAttempts: maxLoadAttempts,
		settleDelay:     settleDelay,
		logger:          logger,
		log:             log,
	}
}

// Extract navigates to the post and returns the de-duplicated set of
// candidates whose comments satisfy the engagement rule. An empty thread or
// an unrecognizable comment pane yields an empty set, not an error.
func (e *Extractor) Extract(ctx context.Context, postURL string, competitors []string) ([]string, error) {
	if err := e.driver.Navigate(ctx, postURL); err != nil {
		return nil, fmt.Errorf("open post: %w", err)
	}
	e.sleep(ctx, e.settleDelay)

	e.loadAllComments(ctx)

	html, err := e.driver.HTML(ctx, "body")
	if err != nil {
		// No readable page body means no candidates, a normal if unlucky
		// outcome for the caller.
		e.logger.Warn().Err(err).Msg("Could not read comment pane, returning empty candidate set")
		return nil, nil
	}

	candidates, err := ParseCandidates(html, competitors)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Comment pane parse failed, returning empty candidate set")
		return nil, nil
	}

	e.log(fmt.Sprintf("Found %d unique potential winners.", len(candidates)))
	return candidates, nil
}

// loadAllComments repeatedly reveals more comments, preferring the explicit
// load-more control and falling back to scrolling the pane. Exhausting the
// attempt budget or running out of actions both mean "fully loaded".
func (e *Extractor) loadAllComments(ctx context.Context) {
	for attempt := 0; attempt < e.maxLoadAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		hasButton, err := e.driver.Exists(ctx, loadMoreSelector)
		if err != nil {
			e.logger.Debug().Err(err).Msg("Load-more probe failed, treating thread as fully loaded")
			return
		}

		if hasButton {
			e.log(fmt.Sprintf("Loading comments (%d/%d)...", attempt+1, e.maxLoadAttempts))
			var clicked bool
			if err := e.driver.Evaluate(ctx, clickLoadMoreJS, &clicked); err != nil || !clicked {
				return
			}
			e.sleep(ctx, e.settleDelay+time.Second)
			continue
		}

		var scrolled bool
		if err := e.driver.Evaluate(ctx, scrollCommentPaneJS, &scrolled); err != nil {
			return
		}

		e.sleep(ctx, 300*time.Millisecond)

		if !scrolled {
			// Nothing scrolled and the short settle surfaced no new
			// load-more control: the thread is fully loaded.
			if hasButtonAfter, _ := e.driver.Exists(ctx, loadMoreSelector); !hasButtonAfter {
				return
			}
		}
	}
}

func (e *Extractor) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ParseCandidates applies the engagement rule to a rendered comment pane.
// Pure function over HTML so the rule is testable without a browser.
func ParseCandidates(html string, competitors []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse comment html: %w", err)
	}

	competitorSet := CompetitorSet(competitors)
	seen := make(map[string]bool)
	var candidates []string

	doc.Find(commentSpanSelector).Each(func(_ int, span *goquery.Selection) {
		text := span.Text()
		if len(text) < minCommentLength || !strings.Contains(text, "@") {
			return
		}

		author := resolveAuthor(span)
		if author == "" {
			// Authorship could not be resolved; skip the comment, not the run.
			return
		}
		if competitorSet[strings.ToLower(author)] {
			return
		}

		if !QualifiesComment(author, text, competitorSet) {
			return
		}

		key := strings.ToLower(author)
		if !seen[key] {
			seen[key] = true
			candidates = append(candidates, author)
		}
	})

	return candidates, nil
}

// resolveAuthor walks up the DOM from a comment's text node looking for the
// first profile link that is not itself a mention. The walk is bounded to
// maxAuthorAncestry levels and stops when it exits the comment list (UL).
func resolveAuthor(span *goquery.Selection) string {
	container := span.Parent()
	for i := 0; i < maxAuthorAncestry; i++ {
		if container.Length() == 0 || goquery.NodeName(container) == "ul" {
			return ""
		}

		author := ""
		container.Find(`a[href^="/"]`).EachWithBreak(func(_ int, link *goquery.Selection) bool {
			href, ok := link.Attr("href")
			if !ok || strings.Contains(href, "/p/") || strings.Contains(href, "/reels/") {
				return true
			}

			match := usernamePattern.FindStringSubmatch(href)
			if match == nil {
				return true
			}

			name := match[1]
			if reservedPaths[strings.ToLower(name)] {
				return true
			}
			// Links whose text is an @-mention point at tagged users,
			// not the comment's author.
			if strings.Contains(link.Text(), "@") {
				return true
			}

			author = name
			return false
		})

		if author != "" {
			return author
		}
		container = container.Parent()
	}
	return ""
}
