package identity

import (
	"net/url"
	"regexp"
	"strings"
)

// YouTube video IDs are always 11 characters.
const youtubeIDLen = 11

var youtubeIDPattern = regexp.MustCompile(`(?:v=|/shorts/|/embed/|youtu\.be/)([A-Za-z0-9_-]{11})`)

// ExtractYouTubeID pulls the 11-character video ID out of the known URL
// shapes (watch?v=, youtu.be/, /shorts/, /embed/). Returns "" when the
// URL does not carry one.
func ExtractYouTubeID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return matchYouTubeID(rawURL)
	}

	// youtu.be/<id>
	if strings.HasSuffix(u.Host, "youtu.be") {
		cand := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
		if len(cand) == youtubeIDLen {
			return cand
		}
		return ""
	}

	// /shorts/<id> and /embed/<id>
	for _, prefix := range []string{"/shorts/", "/embed/"} {
		if rest, ok := strings.CutPrefix(u.Path, prefix); ok {
			cand := strings.SplitN(rest, "/", 2)[0]
			if len(cand) == youtubeIDLen {
				return cand
			}
			return ""
		}
	}

	// watch?v=<id>
	if cand := u.Query().Get("v"); len(cand) == youtubeIDLen {
		return cand
	}
	return ""
}

func matchYouTubeID(rawURL string) string {
	if m := youtubeIDPattern.FindStringSubmatch(rawURL); len(m) > 1 {
		return m[1]
	}
	return ""
}

// NormalizeURL rewrites known YouTube short-link forms to the canonical
// watch URL so tracking parameters and mirrors do not fracture the
// content identity. Non-YouTube URLs pass through unchanged.
func NormalizeURL(rawURL string) string {
	if !strings.Contains(rawURL, "youtu") {
		return rawURL
	}
	if id := ExtractYouTubeID(rawURL); id != "" {
		return "https://www.youtube.com/watch?v=" + id
	}
	return rawURL
}

// Origin returns the scheme://host/ prefix of a URL, used as a referer
// for the browser-like fetch fallback.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
