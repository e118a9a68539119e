// Package deliverables derives publishable artifacts from analysis
// results: platform captions, the per-platform deliverable plan, and its
// CSV and XLSX exports. Everything here is a pure function of its inputs.
package deliverables

import (
	"strings"

	"marketingflow/backend"
	"marketingflow/textutil"
)

// Placeholder is the caption used when there is nothing to summarize.
const Placeholder = "Short summary of the video content."

const (
	CaptionLimit        = 220
	CaptionMinSentences = 2
	DraftLimit          = 480
	DraftMinSentences   = 2
)

// ComposeCaptionText builds "title — summary" from a page analysis. The
// summary is the first non-empty of the draft, the insights formula, the
// body text, the H1s and the H2s; both parts are cleaned of links, hashtags
// and bullets.
func ComposeCaptionText(a *backend.PageAnalysis) string {
	if a == nil {
		return Placeholder
	}

	title := a.Fields.Title
	if title == "" {
		title = a.Keyword
	}
	title = textutil.CleanForCaption(title)

	summary := textutil.CleanForCaption(firstNonEmpty(
		a.Draft,
		a.Insights.Formula,
		a.Fields.Text,
		strings.Join(a.Fields.H1, ". "),
		strings.Join(a.Fields.H2, ". "),
	))

	var parts []string
	for _, p := range []string{title, summary} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if joined := strings.Join(parts, " — "); joined != "" {
		return joined
	}
	return Placeholder
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ShortCaption is the composed caption cut to the shared platform limit.
func ShortCaption(a *backend.PageAnalysis) string {
	return textutil.ShortenDraft(ComposeCaptionText(a), CaptionLimit, CaptionMinSentences)
}

// ShortDraft is the preview form of the generated draft.
func ShortDraft(a *backend.PageAnalysis) string {
	if a == nil {
		return ""
	}
	return textutil.ShortenDraft(a.Draft, DraftLimit, DraftMinSentences)
}

// MakeCaptionsFromMVP publishes the short caption to every platform.
func MakeCaptionsFromMVP(a *backend.PageAnalysis) backend.PlatformCaptions {
	short := ShortCaption(a)
	return backend.PlatformCaptions{
		Facebook:      short,
		Instagram:     short,
		TikTok:        short,
		YouTubeShorts: short,
	}
}

// Captions prefers captions bundled with the video analysis and falls back
// to the ones derived from the page analysis.
func Captions(video *backend.VideoAnalysis, page *backend.PageAnalysis) backend.PlatformCaptions {
	if video != nil && video.ContentDeliverables != nil {
		if c := video.ContentDeliverables.Captions; c != nil && !c.Empty() {
			return *c
		}
	}
	return MakeCaptionsFromMVP(page)
}
