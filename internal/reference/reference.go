// Package reference turns user-submitted video links into stable video keys.
package reference

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cesargomez89/dictation/internal/constants"
	"github.com/cesargomez89/dictation/internal/domain"
)

var (
	keyPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	shortPattern = regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]+)`)
	pathPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/embed/([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`youtube\.com/v/([A-Za-z0-9_-]+)`),
		regexp.MustCompile(`youtube\.com/shorts/([A-Za-z0-9_-]+)`),
	}
)

// ExtractKey derives the video key from a reference. The same reference
// always yields the same key. Errors wrap domain.ErrInvalidReference.
func ExtractKey(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if len(ref) > constants.MaxReferenceLength {
		return "", fmt.Errorf("%w: longer than %d characters", domain.ErrInvalidReference, constants.MaxReferenceLength)
	}

	if strings.Contains(ref, "youtube.com/watch") {
		if key := watchKey(ref); key != "" {
			return key, nil
		}
	}

	if strings.Contains(ref, "youtu.be/") {
		if m := shortPattern.FindStringSubmatch(ref); m != nil {
			return m[1], nil
		}
	}

	for _, p := range pathPatterns {
		if m := p.FindStringSubmatch(ref); m != nil {
			return m[1], nil
		}
	}

	return "", fmt.Errorf("%w: %q (supported formats: youtube.com/watch?v=..., youtu.be/...)", domain.ErrInvalidReference, ref)
}

// WatchURL builds the canonical watch URL for a key.
func WatchURL(key string) string {
	return "https://www.youtube.com/watch?v=" + url.QueryEscape(key)
}

func watchKey(ref string) string {
	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	key := u.Query().Get("v")
	if !keyPattern.MatchString(key) {
		return ""
	}
	return key
}
