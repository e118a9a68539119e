package workspace

import (
	"marketingflow/backend"
	"marketingflow/deliverables"
	"marketingflow/scenes"
	"marketingflow/task"
	"marketingflow/textutil"
)

// PageView is the read-only page analysis state.
type PageView struct {
	Loading    bool                  `json:"loading"`
	Error      string                `json:"error,omitempty"`
	Analysis   *backend.PageAnalysis `json:"analysis,omitempty"`
	Warnings   []backend.Warning     `json:"warnings,omitempty"`
	ShortDraft string                `json:"shortDraft,omitempty"`
}

// VideoView is the read-only scene analysis state.
type VideoView struct {
	Loading       bool                   `json:"loading"`
	Error         string                 `json:"error,omitempty"`
	Analysis      *backend.VideoAnalysis `json:"analysis,omitempty"`
	VideoLink     string                 `json:"videoLink,omitempty"`
	AudioLink     string                 `json:"audioLink,omitempty"`
	Scenes        []scenes.Row           `json:"scenes"`
	Selected      []int                  `json:"selected"`
	TotalDuration float64                `json:"totalDuration"`
}

// JobView adds derived fields to a job snapshot.
type JobView struct {
	task.Job
	Polling      bool   `json:"polling"`
	DownloadLink string `json:"downloadLink,omitempty"`
}

// DeliverablesView is what the planning table and exports are built from.
type DeliverablesView struct {
	Captions backend.PlatformCaptions `json:"captions"`
	Rows     []deliverables.Row       `json:"rows"`
}

// Snapshot is the whole workspace as the view sees it.
type Snapshot struct {
	Page         PageView         `json:"page"`
	Video        VideoView        `json:"video"`
	Media        JobView          `json:"media"`
	Remix        JobView          `json:"remix"`
	Deliverables DeliverablesView `json:"deliverables"`
}

func (w *Workspace) Snapshot() Snapshot {
	page, video := w.analyses()
	return Snapshot{
		Page:         w.pageView(),
		Video:        w.videoView(),
		Media:        w.Job(task.KindMedia),
		Remix:        w.Job(task.KindRemix),
		Deliverables: buildDeliverables(video, page),
	}
}

// Deliverables derives captions and rows from the stored analyses.
func (w *Workspace) Deliverables() DeliverablesView {
	page, video := w.analyses()
	return buildDeliverables(video, page)
}

func buildDeliverables(video *backend.VideoAnalysis, page *backend.PageAnalysis) DeliverablesView {
	rows := deliverables.BuildRows(video, page)
	if rows == nil {
		rows = []deliverables.Row{}
	}
	return DeliverablesView{
		Captions: deliverables.Captions(video, page),
		Rows:     rows,
	}
}

// analyses returns the stored results. Both are replaced, never mutated,
// so the pointers are safe to read without the locks.
func (w *Workspace) analyses() (*backend.PageAnalysis, *backend.VideoAnalysis) {
	w.pageMu.Lock()
	var page *backend.PageAnalysis
	if w.page.result != nil {
		page = &w.page.result.Analysis
	}
	w.pageMu.Unlock()

	w.videoMu.Lock()
	video := w.video.analysis
	w.videoMu.Unlock()
	return page, video
}

func (w *Workspace) pageView() PageView {
	w.pageMu.Lock()
	defer w.pageMu.Unlock()

	v := PageView{Loading: w.page.loading, Error: w.page.err}
	if r := w.page.result; r != nil {
		v.Analysis = &r.Analysis
		v.Warnings = r.Warnings
		v.ShortDraft = deliverables.ShortDraft(&r.Analysis)
	}
	return v
}

func (w *Workspace) videoView() VideoView {
	w.videoMu.Lock()
	defer w.videoMu.Unlock()

	v := VideoView{
		Loading:  w.video.loading,
		Error:    w.video.err,
		Scenes:   w.video.board.Rows(),
		Selected: w.video.board.Selected(),
	}
	if v.Selected == nil {
		v.Selected = []int{}
	}
	if a := w.video.analysis; a != nil {
		v.Analysis = a
		v.VideoLink = w.mediaLink(a.VideoURL, a.VideoPath)
		v.AudioLink = w.mediaLink(a.AudioURL, a.AudioPath)
		v.TotalDuration = scenes.TotalDuration(a.Scenes)
	}
	return v
}

// mediaLink resolves derived /media locators against the backend; raw
// server paths are shown as they are.
func (w *Workspace) mediaLink(explicit, path string) string {
	link := textutil.MediaLink(explicit, path)
	if _, derived := textutil.PublicMediaURL(path); explicit != "" || derived {
		return w.client.ResolveURL(link)
	}
	return link
}

func (w *Workspace) jobView(job task.Job, polling bool) JobView {
	v := JobView{Job: job, Polling: polling}
	if job.Status == task.StatusComplete && job.DownloadURL != "" {
		v.DownloadLink = w.client.ResolveURL(job.DownloadURL)
	}
	return v
}
