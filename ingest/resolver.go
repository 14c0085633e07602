package ingest

import "regexp"

// videoIDPatterns recognizes the external URL shapes the catalog accepts.
// The list is ordered and every pattern is tried; the first successful
// match wins. Capture groups run to the first delimiter in the shape's
// negated class, with no validation of length or charset beyond that.
var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([^&?#/\n]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/embed/([^&?#/\n]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtu\.be/([^&?#/\n]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/shorts/([^&?#/\n]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/v/([^&?#/\n]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?m\.youtube\.com/watch\?v=([^&?#/\n]+)`),
}

// ExtractVideoID classifies rawURL as a supported external video
// reference and extracts its identifier. The second return value is
// false when no recognized shape matches; callers must treat that as a
// hard rejection, not a fallback to the raw URL.
func ExtractVideoID(rawURL string) (string, bool) {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(rawURL); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}

// EmbedURL builds the playback URL for an extracted identifier.
func EmbedURL(videoID string) string {
	return "https://www.youtube.com/embed/" + videoID + "?autoplay=1&rel=0&controls=1&enablejsapi=1"
}
