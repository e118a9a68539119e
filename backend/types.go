package backend

// PageRequest starts a competitor page analysis.
type PageRequest struct {
	URL     string `json:"url"`
	Keyword string `json:"keyword"`
}

// PageFields is the content extracted from the analysed page.
type PageFields struct {
	Title string         `json:"title"`
	H1    []string       `json:"h1"`
	H2    []string       `json:"h2"`
	Metas map[string]any `json:"metas,omitempty"`
	Text  string         `json:"text"`
}

type SEO struct {
	TitleSuggestion string   `json:"title_suggestion,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

type Insights struct {
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Formula      string   `json:"formula,omitempty"`
	Improvements []string `json:"improvements"`
	SEO          SEO      `json:"seo"`
	Note         string   `json:"_note,omitempty"`
}

// QueryStat is one related search query with its relative weight.
type QueryStat struct {
	Query string `json:"query"`
	Value any    `json:"value,omitempty"`
}

type Trends struct {
	InterestLast12m []map[string]float64 `json:"interest_last_12m"`
	TopQueries      []QueryStat          `json:"top_queries"`
	RisingQueries   []QueryStat          `json:"rising_queries"`
}

// PageAnalysis is the /mvp/run payload. DraftErrorNote and SheetExportError
// are non-fatal and are lifted into Warnings by AnalyzePage.
type PageAnalysis struct {
	Source           string     `json:"source"`
	Keyword          string     `json:"keyword"`
	Fields           PageFields `json:"fields"`
	Insights         Insights   `json:"insights"`
	Trends           Trends     `json:"trends"`
	Draft            string     `json:"draft"`
	DraftErrorNote   string     `json:"draft_error_note,omitempty"`
	SheetExportError string     `json:"sheet_export_error,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// SceneSegment is one detected scene. Durations are taken as sent.
type SceneSegment struct {
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
}

type SceneStats struct {
	Count    float64 `json:"count"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	P90      float64 `json:"p90"`
	Shortest float64 `json:"shortest"`
	Longest  float64 `json:"longest"`
}

type PlatformCaptions struct {
	Facebook      string `json:"facebook"`
	Instagram     string `json:"instagram"`
	TikTok        string `json:"tiktok"`
	YouTubeShorts string `json:"youtube_shorts"`
}

// Empty reports whether no platform has a caption.
func (p PlatformCaptions) Empty() bool {
	return p.Facebook == "" && p.Instagram == "" && p.TikTok == "" && p.YouTubeShorts == ""
}

type ContentDeliverables struct {
	VideoStubPath  string            `json:"video_stub_path"`
	CarouselImages []string          `json:"carousel_images"`
	Captions       *PlatformCaptions `json:"captions,omitempty"`
	CTAComments    []string          `json:"cta_comments,omitempty"`
	CarouselZipURL string            `json:"carousel_zip_url,omitempty"`
}

// AudioFormat is the audio track extension extracted by scene analysis.
type AudioFormat string

const (
	AudioMP3 AudioFormat = ".mp3"
	AudioWAV AudioFormat = ".wav"
)

// VideoRequest parameterizes /video/viral-analyze.
type VideoRequest struct {
	URL               string      `json:"url"`
	AudioFormat       AudioFormat `json:"audio_format"`
	SceneSensitivity  float64     `json:"scene_sensitivity"`
	MinSceneGapFrames int         `json:"min_scene_gap_frames"`
}

// Scene detection defaults used when a request leaves fields zero.
const (
	DefaultSceneSensitivity  = 0.45
	DefaultMinSceneGapFrames = 10
	MinSceneSensitivity      = 0.1
	MaxSceneSensitivity      = 0.9
)

// VideoAnalysis is the /video/viral-analyze payload.
type VideoAnalysis struct {
	OK                  bool                 `json:"ok"`
	Detail              string               `json:"detail,omitempty"`
	SourceURL           string               `json:"source_url"`
	VideoPath           string               `json:"video_path"`
	AudioPath           string               `json:"audio_path"`
	VideoURL            string               `json:"video_url,omitempty"`
	AudioURL            string               `json:"audio_url,omitempty"`
	AudioFormat         string               `json:"audio_format"`
	Scenes              []SceneSegment       `json:"scenes"`
	Stats               SceneStats           `json:"stats"`
	ContentDeliverables *ContentDeliverables `json:"content_deliverables,omitempty"`
}

// Upload is one file part of a multipart request.
type Upload struct {
	Filename string
	Path     string
}

// MediaJobRequest starts subtitle burn-in and optional BGM mixing.
type MediaJobRequest struct {
	Video    Upload
	BGM      *Upload
	BurnIn   bool
	Flip     bool
	Language string
}

// RemixRequest asks the backend to assemble a new video from kept scenes.
type RemixRequest struct {
	VideoPath string         `json:"video_path"`
	Scenes    []SceneSegment `json:"scenes"`
}

// Ack is the acknowledgement of an accepted job.
type Ack struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Error  string `json:"error,omitempty"`
}

// JobState is the status value reported by /process/status.
type JobState string

const (
	JobProcessing JobState = "processing"
	JobComplete   JobState = "complete"
	JobFailed     JobState = "failed"
)

// StatusReport is one poll response.
type StatusReport struct {
	Status      JobState `json:"status"`
	DownloadURL string   `json:"download_url,omitempty"`
	ServerPath  string   `json:"server_path,omitempty"`
	Error       string   `json:"error,omitempty"`
}
