package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	opPage  = "page analysis"
	opVideo = "scene analysis"
)

// Validate reports missing or malformed page analysis input.
func (r PageRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Field: "url", Message: "Please enter a page URL."}
	}
	if u, err := url.Parse(strings.TrimSpace(r.URL)); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Message: "Please enter a valid http(s) URL."}
	}
	if strings.TrimSpace(r.Keyword) == "" {
		return &ValidationError{Field: "keyword", Message: "Please enter a keyword."}
	}
	return nil
}

// PageResult is a usable page analysis together with its non-fatal notes.
type PageResult struct {
	Analysis PageAnalysis `json:"analysis"`
	Warnings []Warning    `json:"warnings,omitempty"`
}

// AnalyzePage runs /mvp/run. A draft generation note or a sheet export
// failure does not fail the call; both come back as Warnings next to the
// analysis.
func (c *Client) AnalyzePage(ctx context.Context, req PageRequest) (*PageResult, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Keyword = strings.TrimSpace(req.Keyword)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, c.endpoint("/mvp/run", nil), req)
	if err != nil {
		return nil, err
	}

	var analysis PageAnalysis
	status, err := c.run(opPage, httpReq, &analysis)
	if err != nil {
		return nil, err
	}
	if analysis.Error != "" {
		return nil, &RequestError{Op: opPage, StatusCode: status, ServerMessage: analysis.Error}
	}
	return &PageResult{Analysis: analysis, Warnings: pageWarnings(analysis)}, nil
}

func pageWarnings(a PageAnalysis) []Warning {
	var warnings []Warning
	if a.DraftErrorNote != "" {
		warnings = append(warnings, Warning{Field: "draft_error_note", Message: a.DraftErrorNote})
	}
	if a.SheetExportError != "" {
		warnings = append(warnings, Warning{Field: "sheet_export_error", Message: a.SheetExportError})
	}
	if a.Insights.Note != "" {
		warnings = append(warnings, Warning{Field: "insights", Message: a.Insights.Note})
	}
	return warnings
}

// WithDefaults fills zero-valued scene detection options.
func (r VideoRequest) WithDefaults() VideoRequest {
	r.URL = strings.TrimSpace(r.URL)
	if r.AudioFormat == "" {
		r.AudioFormat = AudioMP3
	}
	if r.SceneSensitivity == 0 {
		r.SceneSensitivity = DefaultSceneSensitivity
	}
	if r.MinSceneGapFrames == 0 {
		r.MinSceneGapFrames = DefaultMinSceneGapFrames
	}
	return r
}

// Validate checks scene analysis options against the ranges the backend accepts.
func (r VideoRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Field: "url", Message: "Please paste a video URL."}
	}
	if r.AudioFormat != AudioMP3 && r.AudioFormat != AudioWAV {
		return &ValidationError{Field: "audio_format", Message: "Audio format must be .mp3 or .wav."}
	}
	if r.SceneSensitivity < MinSceneSensitivity || r.SceneSensitivity > MaxSceneSensitivity {
		return &ValidationError{Field: "scene_sensitivity", Message: "Scene sensitivity must be between 0.1 and 0.9."}
	}
	if r.MinSceneGapFrames < 1 {
		return &ValidationError{Field: "min_scene_gap_frames", Message: "Minimum scene gap must be at least 1 frame."}
	}
	return nil
}

// AnalyzeVideo runs /video/viral-analyze. The backend may answer 2xx with
// ok:false, which is a failure carrying its detail text.
func (c *Client) AnalyzeVideo(ctx context.Context, req VideoRequest) (*VideoAnalysis, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	query := url.Values{}
	query.Set("url", req.URL)
	query.Set("audio_ext", string(req.AudioFormat))
	query.Set("scene_sensitivity", strconv.FormatFloat(req.SceneSensitivity, 'f', -1, 64))
	query.Set("min_scene_gap_frames", strconv.Itoa(req.MinSceneGapFrames))

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, c.endpoint("/video/viral-analyze", query), nil)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	status, err := c.run(opVideo, httpReq, &raw)
	if err != nil {
		return nil, err
	}

	// ok is optional on success; only an explicit false is a failure.
	var probe struct {
		OK *bool `json:"ok"`
	}
	var analysis VideoAnalysis
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &TransportError{Op: opVideo, Err: err}
	}
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, &TransportError{Op: opVideo, Err: err}
	}
	if probe.OK != nil && !*probe.OK {
		return nil, &RequestError{Op: opVideo, StatusCode: status, ServerMessage: serverMessage(raw)}
	}
	analysis.OK = true
	return &analysis, nil
}
