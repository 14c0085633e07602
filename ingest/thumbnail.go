package ingest

import (
	"context"
	"log"
	"net/http"
	"time"
)

// thumbnailQualities lists the probe order, best quality first.
var thumbnailQualities = []string{"maxresdefault", "hqdefault", "mqdefault", "default"}

const defaultThumbnailBase = "https://img.youtube.com"

// ThumbnailNegotiator finds the highest-quality thumbnail that actually
// exists at the external image host.
type ThumbnailNegotiator struct {
	// BaseURL is the image host prefix; defaults to the platform CDN.
	BaseURL string
	// Client issues the HEAD probes. A bounded timeout is applied when
	// nil so an unreachable host cannot block ingestion indefinitely.
	Client *http.Client
}

func (n *ThumbnailNegotiator) base() string {
	if n.BaseURL != "" {
		return n.BaseURL
	}
	return defaultThumbnailBase
}

func (n *ThumbnailNegotiator) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return &http.Client{Timeout: 5 * time.Second}
}

// Candidates returns the template URLs for videoID, best quality first.
func (n *ThumbnailNegotiator) Candidates(videoID string) []string {
	urls := make([]string, 0, len(thumbnailQualities))
	for _, q := range thumbnailQualities {
		urls = append(urls, n.base()+"/vi/"+videoID+"/"+q+".jpg")
	}
	return urls
}

// Best probes each candidate in order with a HEAD request and returns
// the first that answers 2xx. Probe failures move to the next candidate;
// if every probe fails the best-quality URL is returned unconditionally.
// Best never returns an empty string and never returns an error.
func (n *ThumbnailNegotiator) Best(ctx context.Context, videoID string) string {
	candidates := n.Candidates(videoID)
	client := n.client()

	for _, candidate := range candidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
		if err != nil {
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			log.Printf("thumbnail probe failed for %s: %v", candidate, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return candidate
		}
	}
	return candidates[0]
}
