package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Metadata holds the human-readable fields captured (or defaulted)
// during enrichment, echoed back to the caller as scrapedData.
type Metadata struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelName  string `json:"channel_name"`
	ThumbnailURL string `json:"thumbnail_url"`
}

var (
	titleRe       = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	titleSuffixRe = regexp.MustCompile(`(?i) - YouTube$`)
	descriptionRe = regexp.MustCompile(`(?i)<meta property="og:description" content="([^"]+)"`)

	// Ordered channel-name patterns. The literal brand name is a
	// sentinel meaning "no real author found, try the next pattern".
	channelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)"author":"([^"]+)"`),
		regexp.MustCompile(`(?i)"ownerChannelName":"([^"]+)"`),
		regexp.MustCompile(`(?i)<link itemprop="name" content="([^"]+)"`),
		regexp.MustCompile(`(?i)<meta name="author" content="([^"]+)"`),
	}
)

const channelSentinel = "YouTube"

// Scraper fetches the rendered page for an external URL through the
// configured scrape-and-return-HTML integration and pattern-matches
// known embedded fields. It is explicitly approximate: the patterns are
// tied to one platform's current page structure and silently degrade to
// the seeded defaults when that structure changes.
type Scraper struct {
	Endpoint string
	Client   *http.Client
}

func (s *Scraper) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Enrich fetches pageURL via the scrape integration and overlays any
// matched fields onto seed. Every failure path — transport error,
// non-2xx response, no pattern match — keeps the seeded value. Enrich
// never returns an error.
func (s *Scraper) Enrich(ctx context.Context, pageURL string, seed Metadata) Metadata {
	if s == nil || s.Endpoint == "" {
		return seed
	}

	body, err := json.Marshal(map[string]interface{}{"url": pageURL, "getText": false})
	if err != nil {
		return seed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return seed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client().Do(req)
	if err != nil {
		log.Printf("scrape fetch failed for %s: %v", pageURL, err)
		return seed
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("scrape fetch for %s returned status %d", pageURL, resp.StatusCode)
		return seed
	}

	html, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return seed
	}
	return ParseMetadata(string(html), seed)
}

// ParseMetadata overlays fields matched in html onto seed.
func ParseMetadata(html string, seed Metadata) Metadata {
	out := seed

	if m := titleRe.FindStringSubmatch(html); m != nil {
		title := strings.TrimSpace(m[1])
		title = titleSuffixRe.ReplaceAllString(title, "")
		if title != "" {
			out.Title = title
		}
	}

	if m := descriptionRe.FindStringSubmatch(html); m != nil {
		out.Description = m[1]
	}

	for _, pattern := range channelPatterns {
		if m := pattern.FindStringSubmatch(html); m != nil && m[1] != channelSentinel {
			out.ChannelName = m[1]
			break
		}
	}
	return out
}
