package provider

import (
	"net/url"
	"regexp"
	"strings"
)

// YouTube extracts video IDs from the two URL shapes the platform uses:
// long watch links carrying the ID in the "v" query parameter, and short
// youtu.be links carrying it as the first path segment.
type YouTube struct {
	idPattern *regexp.Regexp
}

// NewYouTube creates a YouTube provider.
func NewYouTube() *YouTube {
	return &YouTube{
		// Video IDs are 11 chars of base64-url alphabet.
		idPattern: regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`),
	}
}

// Name implements Provider.
func (y *YouTube) Name() string { return "youtube" }

// MatchURL implements Provider.
func (y *YouTube) MatchURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be":
		id := strings.Trim(u.Path, "/")
		if i := strings.IndexByte(id, '/'); i >= 0 {
			id = id[:i]
		}
		if y.idPattern.MatchString(id) {
			return id, true
		}
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if strings.HasPrefix(u.Path, "/watch") {
			if id := u.Query().Get("v"); y.idPattern.MatchString(id) {
				return id, true
			}
		}
		// Shorts and embed links carry the ID as a path segment.
		for _, prefix := range []string{"/shorts/", "/embed/"} {
			if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
				id := strings.Trim(rest, "/")
				if y.idPattern.MatchString(id) {
					return id, true
				}
			}
		}
	}

	return "", false
}
