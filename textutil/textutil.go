// Package textutil holds the pure text helpers used to present analysis
// results: scene time formatting, caption cleaning and shortening, and
// public media URL derivation.
package textutil

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Ellipsis is appended by ShortenDraft whenever it drops text.
const Ellipsis = "…"

var (
	urlPattern     = regexp.MustCompile(`(?i)https?://\S+`)
	hashtagPattern = regexp.MustCompile(`(^|\s)#[\p{L}\w_]+`)
	bulletPattern  = regexp.MustCompile(`[•\-–]+\s*`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// FormatTime renders seconds as m:ss.mmm. Non-finite or negative input
// renders as 0:00.000.
func FormatTime(sec float64) string {
	if math.IsNaN(sec) || math.IsInf(sec, 0) || sec < 0 {
		return "0:00.000"
	}
	ms := int64(math.Round(sec * 1000))
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

// CopyTimes is the clipboard form of a scene interval: "start,end" with
// millisecond precision.
func CopyTimes(start, end float64) string {
	return fmt.Sprintf("%.3f,%.3f", start, end)
}

// NormalizeSpace collapses every whitespace run to one space and trims.
func NormalizeSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// CleanForCaption strips links, hashtags and bullet glyphs, then
// normalizes whitespace.
func CleanForCaption(s string) string {
	if s == "" {
		return ""
	}
	s = urlPattern.ReplaceAllString(s, "")
	s = hashtagPattern.ReplaceAllString(s, "")
	s = bulletPattern.ReplaceAllString(s, "")
	return NormalizeSpace(s)
}

// SplitSentences splits normalized text after terminal punctuation (. ! ?)
// followed by whitespace. The punctuation stays with its sentence.
func SplitSentences(text string) []string {
	text = NormalizeSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	start := 0
	for i := 1; i < len(text); i++ {
		if text[i] == ' ' && strings.IndexByte(".!?", text[i-1]) >= 0 {
			parts = append(parts, text[start:i])
			start = i + 1
		}
	}
	return append(parts, text[start:])
}

// ShortenDraft trims text to roughly limit characters on sentence
// boundaries. The first minSentences sentences are always kept; if the
// kept text is still longer than limit it is cut at limit characters, a
// trailing ",", ":" or ";" is dropped, and Ellipsis is appended. Text that
// already fits is returned normalized and without an ellipsis.
func ShortenDraft(s string, limit, minSentences int) string {
	if limit < 0 {
		limit = 0
	}
	text := NormalizeSpace(s)
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}

	out := ""
	for i, part := range SplitSentences(text) {
		next := part
		if out != "" {
			next = out + " " + part
		}
		if utf8.RuneCountInString(next) > limit && i >= minSentences {
			break
		}
		out = next
	}

	if utf8.RuneCountInString(out) > limit {
		out = strings.TrimSpace(string([]rune(out)[:limit]))
		if n := len(out); n > 0 && strings.IndexByte(",:;", out[n-1]) >= 0 {
			out = out[:n-1]
		}
	}
	return out + Ellipsis
}

var mediaFolders = []string{"/audio/", "/videos/", "/exports/"}

// PublicMediaURL derives the public /media URL of a file the backend stored
// under one of its served folders. Matching is case-insensitive on the last
// occurrence of each marker, checked in a fixed order. It reports false when
// no marker is present; callers then show the raw path.
func PublicMediaURL(serverPath string) (string, bool) {
	if serverPath == "" {
		return "", false
	}
	norm := strings.ReplaceAll(serverPath, `\`, "/")
	lower := asciiLower(norm)

	if i := strings.LastIndex(lower, "/media/"); i >= 0 {
		return norm[i:], true
	}
	for _, marker := range mediaFolders {
		if i := strings.LastIndex(lower, marker); i >= 0 {
			return "/media" + norm[i:], true
		}
	}
	if i := strings.LastIndex(lower, "media/"); i >= 0 {
		return "/" + norm[i:], true
	}
	return "", false
}

// asciiLower lowercases A-Z only, keeping byte offsets aligned with s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// MediaLink picks the URL to show for a media file: an explicit server URL
// first, then the derived public URL, then the raw server path.
func MediaLink(explicitURL, serverPath string) string {
	if explicitURL != "" {
		return explicitURL
	}
	if u, ok := PublicMediaURL(serverPath); ok {
		return u
	}
	return serverPath
}
