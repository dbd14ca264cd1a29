package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/eligo/internal/common"
)

var shortcodePattern = regexp.MustCompile(`/(p|reels|reel)/([A-Za-z0-9_-]+)`)

// GraphClient is the accelerated bulk-comment path. It only succeeds for
// posts owned by the authenticated principal; callers must be prepared for it
// to decline and fall back to DOM extraction.
type GraphClient struct {
	httpClient   *http.Client
	baseURL      string
	manualPageID string
	logger       arbor.ILogger
}

type graphAccount struct {
	ID                       string `json:"id"`
	Name                     string `json:"name"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

type graphMedia struct {
	ID        string `json:"id"`
	Shortcode string `json:"shortcode"`
}

type graphComment struct {
	Username string `json:"username"`
	Text     string `json:"text"`
}

type graphPaging struct {
	Next string `json:"next"`
}

// NewGraphClient builds a client from configuration; returns nil when no
// access token is configured (the accelerated path is simply unavailable).
func NewGraphClient(ctx context.Context, config *common.GraphConfig, logger arbor.ILogger) *GraphClient {
	if config == nil || config.AccessToken == "" {
		return nil
	}

	apiVersion := config.APIVersion
	if apiVersion == "" {
		apiVersion = "v18.0"
	}

	// The token arrives from config; the exchange flow that produced it is
	// outside this service.
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.AccessToken})
	httpClient := oauth2.NewClient(ctx, source)
	httpClient.Timeout = 30 * time.Second

	return &GraphClient{
		httpClient:   httpClient,
		baseURL:      "https://graph.facebook.com/" + apiVersion,
		manualPageID: config.ManualPageID,
		logger:       logger,
	}
}

// FetchQualifiedCommenters retrieves the post's comments through the bulk API
// and applies the engagement rule. Any failure (missing business account,
// foreign post, API error) is returned for the caller to log and fall back.
func (c *GraphClient) FetchQualifiedCommenters(ctx context.Context, postURL string, competitors []string, log LogSink) ([]string, error) {
	if log == nil {
		log = discard
	}
	log("Fetching comments via Graph API...")

	igID, err := c.businessAccountID(ctx, log)
	if err != nil {
		return nil, err
	}

	shortcode, err := extractShortcode(postURL)
	if err != nil {
		return nil, err
	}

	mediaID, err := c.findMedia(ctx, igID, shortcode)
	if err != nil {
		return nil, err
	}

	return c.collectCommenters(ctx, mediaID, competitors, log)
}

// businessAccountID discovers the linked Instagram business account, falling
// back to a configured manual page ID for pages hidden from auto-discovery.
func (c *GraphClient) businessAccountID(ctx context.Context, log LogSink) (string, error) {
	var accounts struct {
		Data []graphAccount `json:"data"`
	}
	if err := c.get(ctx, c.baseURL+"/me/accounts?fields=instagram_business_account,name", &accounts); err != nil {
		return "", fmt.Errorf("list accounts: %w", err)
	}

	for _, account := range accounts.Data {
		if account.InstagramBusinessAccount != nil {
			return account.InstagramBusinessAccount.ID, nil
		}
	}

	if c.manualPageID != "" {
		log("Auto-discovery found 0 pages. Trying manual page ID lookup...")
		var page graphAccount
		endpoint := fmt.Sprintf("%s/%s?fields=instagram_business_account,name", c.baseURL, c.manualPageID)
		if err := c.get(ctx, endpoint, &page); err != nil {
			return "", fmt.Errorf("manual page lookup: %w", err)
		}
		if page.InstagramBusinessAccount != nil {
			log(fmt.Sprintf("Manual match found: %s", page.Name))
			return page.InstagramBusinessAccount.ID, nil
		}
	}

	return "", fmt.Errorf("no instagram business account linked")
}

// findMedia matches the post's shortcode against the account's recent media.
// The API only exposes the caller's own posts.
func (c *GraphClient) findMedia(ctx context.Context, igID, shortcode string) (string, error) {
	var media struct {
		Data []graphMedia `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/%s/media?fields=shortcode&limit=50", c.baseURL, igID)
	if err := c.get(ctx, endpoint, &media); err != nil {
		return "", fmt.Errorf("list media: %w", err)
	}

	for _, m := range media.Data {
		if m.Shortcode == shortcode {
			return m.ID, nil
		}
	}
	return "", fmt.Errorf("post not found in recent media (API only covers your own posts)")
}

// collectCommenters paginates the post's comments and applies the engagement
// rule to each {author, text} pair.
func (c *GraphClient) collectCommenters(ctx context.Context, mediaID string, competitors []string, log LogSink) ([]string, error) {
	competitorSet := CompetitorSet(competitors)
	seen := make(map[string]bool)
	var commenters []string

	next := fmt.Sprintf("%s/%s/comments?fields=username,text&limit=50", c.baseURL, mediaID)
	for next != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var page struct {
			Data   []graphComment `json:"data"`
			Paging *graphPaging   `json:"paging"`
		}
		if err := c.get(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("fetch comments: %w", err)
		}

		for _, comment := range page.Data {
			if competitorSet[strings.ToLower(comment.Username)] {
				continue
			}
			if !QualifiesComment(comment.Username, comment.Text, competitorSet) {
				continue
			}
			key := strings.ToLower(comment.Username)
			if !seen[key] {
				seen[key] = true
				commenters = append(commenters, comment.Username)
			}
		}

		next = ""
		if page.Paging != nil && page.Paging.Next != "" {
			next = page.Paging.Next
			log(fmt.Sprintf("   Fetched %d potential winners so far...", len(commenters)))
		}
	}

	return commenters, nil
}

func (c *GraphClient) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("graph api: %s", apiErr.Error.Message)
		}
		return fmt.Errorf("graph api: status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// extractShortcode pulls the media shortcode out of a post URL.
func extractShortcode(postURL string) (string, error) {
	parsed, err := url.Parse(postURL)
	if err != nil {
		return "", fmt.Errorf("parse post url: %w", err)
	}
	match := shortcodePattern.FindStringSubmatch(parsed.Path)
	if match == nil {
		return "", fmt.Errorf("could not extract shortcode from url")
	}
	return match[2], nil
}
