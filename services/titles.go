package services

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// PlaceholderTitle is used whenever the source page cannot be scraped.
const PlaceholderTitle = "Untitled transcription"

var titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// TitleResolver fetches a human-readable label for a video URL. It is purely
// cosmetic: any failure falls back to a placeholder, never an error.
type TitleResolver struct {
	client *http.Client
}

func NewTitleResolver(timeout time.Duration) *TitleResolver {
	return &TitleResolver{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *TitleResolver) Resolve(ctx context.Context, sourceURL string) string {
	req, err := http.NewRequestWithContext(ctx, "GET", sourceURL, nil)
	if err != nil {
		return PlaceholderTitle
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return PlaceholderTitle
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PlaceholderTitle
	}

	// The <title> element sits in <head>; 64KB is plenty.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return PlaceholderTitle
	}

	match := titlePattern.FindSubmatch(body)
	if match == nil {
		return PlaceholderTitle
	}

	title := strings.TrimSpace(html.UnescapeString(string(match[1])))
	if title == "" {
		return PlaceholderTitle
	}
	if len(title) > 200 {
		title = fmt.Sprintf("%s...", title[:197])
	}
	return title
}
