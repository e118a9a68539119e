// Package workspace holds the per-workflow state behind the controller
// API: page analysis, video analysis with its scene selection, and the
// media and remix jobs. Views only ever see Snapshot values.
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"marketingflow/backend"
	"marketingflow/logging"
	"marketingflow/scenes"
	"marketingflow/task"
)

// Backend is the part of the backend client the workspace drives.
type Backend interface {
	AnalyzePage(ctx context.Context, req backend.PageRequest) (*backend.PageResult, error)
	AnalyzeVideo(ctx context.Context, req backend.VideoRequest) (*backend.VideoAnalysis, error)
	StartMediaJob(ctx context.Context, req backend.MediaJobRequest) (backend.Ack, error)
	StartRemixJob(ctx context.Context, req backend.RemixRequest) (backend.Ack, error)
	ResolveURL(locator string) string
}

type pageState struct {
	gen     uint64
	loading bool
	err     string
	result  *backend.PageResult
}

type videoState struct {
	gen      uint64
	loading  bool
	err      string
	analysis *backend.VideoAnalysis
	board    scenes.Board
}

type Workspace struct {
	client Backend
	media  *task.Controller
	remix  *task.Controller
	logger *slog.Logger

	pageMu sync.Mutex
	page   pageState

	videoMu sync.Mutex
	video   videoState
}

func New(client Backend, media, remix *task.Controller, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{
		client: client,
		media:  media,
		remix:  remix,
		logger: logging.WithComponent(logger, "workspace"),
	}
}

// Controller returns the job controller for kind.
func (w *Workspace) Controller(kind task.Kind) *task.Controller {
	if kind == task.KindRemix {
		return w.remix
	}
	return w.media
}

// AnalyzePage runs a page analysis and stores it. Only the most recent
// call's outcome is kept.
func (w *Workspace) AnalyzePage(ctx context.Context, req backend.PageRequest) (PageView, error) {
	if err := req.Validate(); err != nil {
		return w.pageView(), err
	}

	w.pageMu.Lock()
	w.page.gen++
	gen := w.page.gen
	w.page.loading = true
	w.page.err = ""
	w.page.result = nil
	w.pageMu.Unlock()

	result, err := w.client.AnalyzePage(ctx, req)

	w.pageMu.Lock()
	if w.page.gen == gen {
		w.page.loading = false
		if err != nil {
			w.page.err = backend.UserMessage(err, backend.GenericFailure)
		} else {
			w.page.result = result
		}
	}
	w.pageMu.Unlock()

	if err != nil {
		w.logger.Warn("page analysis failed", "error", err)
	} else if len(result.Warnings) > 0 {
		w.logger.Info("page analysis finished with warnings", "warnings", len(result.Warnings))
	}
	return w.pageView(), err
}

// AnalyzeVideo runs scene detection. The previous result, the scene
// selection and the remix job are all cleared before the request is sent.
func (w *Workspace) AnalyzeVideo(ctx context.Context, req backend.VideoRequest) (VideoView, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return w.videoView(), err
	}

	w.videoMu.Lock()
	w.video.gen++
	gen := w.video.gen
	w.video.loading = true
	w.video.err = ""
	w.video.analysis = nil
	w.video.board.Reset()
	w.videoMu.Unlock()

	w.remix.Reset()

	analysis, err := w.client.AnalyzeVideo(ctx, req)

	w.videoMu.Lock()
	if w.video.gen == gen {
		w.video.loading = false
		if err != nil {
			w.video.err = backend.UserMessage(err, backend.GenericFailure)
		} else {
			w.video.analysis = analysis
			w.video.board.Replace(analysis.VideoPath, analysis.Scenes)
		}
	}
	w.videoMu.Unlock()

	if err != nil {
		w.logger.Warn("scene analysis failed", "error", err)
	} else {
		w.logger.Info("scene analysis finished", "scenes", len(analysis.Scenes))
	}
	return w.videoView(), err
}

// ToggleScene flips scene i and returns the selected indices.
func (w *Workspace) ToggleScene(i int) ([]int, error) {
	w.videoMu.Lock()
	defer w.videoMu.Unlock()
	if _, err := w.video.board.Toggle(i); err != nil {
		return w.video.board.Selected(), err
	}
	return w.video.board.Selected(), nil
}

func (w *Workspace) ClearSelection() {
	w.videoMu.Lock()
	w.video.board.Clear()
	w.videoMu.Unlock()
}

// SceneTimes returns the clipboard text for scene i.
func (w *Workspace) SceneTimes(i int) (string, error) {
	w.videoMu.Lock()
	defer w.videoMu.Unlock()
	rows := w.video.board.Rows()
	if i < 0 || i >= len(rows) {
		return "", scenes.ErrIndexOutOfRange
	}
	return rows[i].CopyText, nil
}

type mediaStarter struct {
	client Backend
	req    backend.MediaJobRequest
}

func (s mediaStarter) Validate() error { return s.req.Validate() }

func (s mediaStarter) Begin(ctx context.Context) (backend.Ack, error) {
	return s.client.StartMediaJob(ctx, s.req)
}

type remixStarter struct {
	client Backend
	req    backend.RemixRequest
}

func (s remixStarter) Validate() error { return s.req.Validate() }

func (s remixStarter) Begin(ctx context.Context) (backend.Ack, error) {
	return s.client.StartRemixJob(ctx, s.req)
}

// StartMedia starts subtitle/BGM processing of already staged uploads.
func (w *Workspace) StartMedia(ctx context.Context, req backend.MediaJobRequest) (JobView, error) {
	job, err := w.media.Start(ctx, mediaStarter{client: w.client, req: req})
	return w.jobView(job, w.media.Polling()), err
}

// StartRemix builds the remix request from the current selection, clears
// the selection and starts the job. An empty selection or a missing
// analysis fails without contacting the backend.
func (w *Workspace) StartRemix(ctx context.Context) (JobView, error) {
	w.videoMu.Lock()
	req, err := w.video.board.BuildRemixRequest()
	if err == nil {
		w.video.board.Clear()
	}
	w.videoMu.Unlock()

	if err != nil {
		return w.jobView(w.remix.Snapshot(), w.remix.Polling()), err
	}

	job, err := w.remix.Start(ctx, remixStarter{client: w.client, req: req})
	return w.jobView(job, w.remix.Polling()), err
}

// Job returns the current view of one job kind.
func (w *Workspace) Job(kind task.Kind) JobView {
	c := w.Controller(kind)
	return w.jobView(c.Snapshot(), c.Polling())
}

// Close stops both poll loops.
func (w *Workspace) Close() {
	w.media.Stop()
	w.remix.Stop()
}
