// Package video extracts the playable video id from a hosted video URL.
package video

import (
	"net/url"
	"regexp"
	"strings"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// path prefixes carrying the id as the following segment
var pathPrefixes = []string{"/embed/", "/shorts/", "/live/", "/v/"}

// ExtractID returns the video id of a YouTube style URL. Supported shapes:
//
//	https://www.youtube.com/watch?v=ID
//	https://youtu.be/ID
//	https://www.youtube.com/embed/ID (also /shorts/, /live/, /v/)
//	ID
//
// ok is false for anything else.
func ExtractID(raw string) (id string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if idPattern.MatchString(raw) {
		return raw, true
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch host {
	case "youtu.be":
		return valid(firstSegment(u.Path))
	case "youtube.com", "youtube-nocookie.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			return valid(v)
		}
		for _, prefix := range pathPrefixes {
			if rest, found := strings.CutPrefix(u.Path, prefix); found {
				return valid(firstSegment(rest))
			}
		}
	}
	return "", false
}

func firstSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	seg, _, _ := strings.Cut(p, "/")
	return seg
}

func valid(id string) (string, bool) {
	if idPattern.MatchString(id) {
		return id, true
	}
	return "", false
}
