package workspace

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketingflow/backend"
	"marketingflow/logging"
	"marketingflow/scenes"
	"marketingflow/task"
)

const backendBase = "http://backend.test"

type fakeBackend struct {
	mu sync.Mutex

	page     *backend.PageResult
	pageErr  error
	video    *backend.VideoAnalysis
	videoErr error

	pageCalls  int
	videoCalls int
	media      []backend.MediaJobRequest
	remix      []backend.RemixRequest
	status     map[string]backend.StatusReport
	statusHits []string
}

func (f *fakeBackend) AnalyzePage(_ context.Context, _ backend.PageRequest) (*backend.PageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	return f.page, f.pageErr
}

func (f *fakeBackend) AnalyzeVideo(_ context.Context, _ backend.VideoRequest) (*backend.VideoAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videoCalls++
	return f.video, f.videoErr
}

func (f *fakeBackend) StartMediaJob(_ context.Context, req backend.MediaJobRequest) (backend.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, req)
	return backend.Ack{Status: "processing", JobID: "media-1"}, nil
}

func (f *fakeBackend) StartRemixJob(_ context.Context, req backend.RemixRequest) (backend.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remix = append(f.remix, req)
	return backend.Ack{Status: "processing", JobID: "remix-1"}, nil
}

func (f *fakeBackend) JobStatus(_ context.Context, jobID string) (backend.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusHits = append(f.statusHits, jobID)
	if r, ok := f.status[jobID]; ok {
		return r, nil
	}
	return backend.StatusReport{Status: backend.JobProcessing}, nil
}

func (f *fakeBackend) ResolveURL(locator string) string {
	return backendBase + locator
}

func (f *fakeBackend) setStatus(jobID string, r backend.StatusReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		f.status = map[string]backend.StatusReport{}
	}
	f.status[jobID] = r
}

func (f *fakeBackend) remixCalls() []backend.RemixRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.RemixRequest(nil), f.remix...)
}

type fixture struct {
	ws      *Workspace
	backend *fakeBackend
	clock   *task.ManualClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fb := &fakeBackend{}
	clock := task.NewManualClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	opts := []task.Option{task.WithClock(clock), task.WithLogger(logging.Discard())}

	media, err := task.NewController(task.KindMedia, fb, task.Config{}, opts...)
	require.NoError(t, err)
	remix, err := task.NewController(task.KindRemix, fb, task.Config{}, opts...)
	require.NoError(t, err)

	ws := New(fb, media, remix, logging.Discard())
	t.Cleanup(ws.Close)
	return &fixture{ws: ws, backend: fb, clock: clock}
}

func sampleVideo(n int) *backend.VideoAnalysis {
	list := make([]backend.SceneSegment, n)
	for i := range list {
		start := float64(i) * 2.5
		list[i] = backend.SceneSegment{StartSec: start, EndSec: start + 2.5, DurationSec: 2.5}
	}
	return &backend.VideoAnalysis{
		OK:        true,
		SourceURL: "https://www.youtube.com/shorts/xyz",
		VideoPath: `C:\srv\Exports\clip.mp4`,
		AudioPath: "/tmp/raw.wav",
		Scenes:    list,
	}
}

func analyzeVideo(t *testing.T, f *fixture, v *backend.VideoAnalysis) VideoView {
	t.Helper()
	f.backend.mu.Lock()
	f.backend.video = v
	f.backend.mu.Unlock()
	view, err := f.ws.AnalyzeVideo(context.Background(), backend.VideoRequest{URL: "https://www.youtube.com/shorts/xyz"})
	require.NoError(t, err)
	return view
}

func TestAnalyzePage(t *testing.T) {
	t.Run("validation error makes no call", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.ws.AnalyzePage(context.Background(), backend.PageRequest{URL: "https://shop.example"})

		var ve *backend.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Please enter a keyword.", ve.Message)
		assert.Zero(t, f.backend.pageCalls)
		assert.Nil(t, view.Analysis)
	})

	t.Run("keeps result and warnings together", func(t *testing.T) {
		f := newFixture(t)
		f.backend.page = &backend.PageResult{
			Analysis: backend.PageAnalysis{
				Fields: backend.PageFields{Title: "Shop"},
				Draft:  "First line. Second line.",
			},
			Warnings: []backend.Warning{{Field: "sheet_export_error", Message: "quota exceeded"}},
		}

		view, err := f.ws.AnalyzePage(context.Background(), backend.PageRequest{URL: "https://shop.example", Keyword: "shoes"})
		require.NoError(t, err)
		assert.False(t, view.Loading)
		require.NotNil(t, view.Analysis)
		assert.Equal(t, "First line. Second line.", view.ShortDraft)
		assert.Len(t, view.Warnings, 1)
		assert.Empty(t, view.Error)

		caps := f.ws.Snapshot().Deliverables.Captions
		assert.Equal(t, "Shop — First line. Second line.", caps.TikTok)
		assert.Equal(t, caps.TikTok, caps.Facebook)
	})

	t.Run("failure replaces the previous result with a message", func(t *testing.T) {
		f := newFixture(t)
		f.backend.page = &backend.PageResult{Analysis: backend.PageAnalysis{Draft: "Old."}}
		_, err := f.ws.AnalyzePage(context.Background(), backend.PageRequest{URL: "https://shop.example", Keyword: "shoes"})
		require.NoError(t, err)

		f.backend.page = nil
		f.backend.pageErr = &backend.RequestError{Op: "page analysis", StatusCode: http.StatusBadGateway, ServerMessage: "Upstream timed out"}
		view, err := f.ws.AnalyzePage(context.Background(), backend.PageRequest{URL: "https://shop.example", Keyword: "shoes"})
		require.Error(t, err)
		assert.Equal(t, "Upstream timed out", view.Error)
		assert.Nil(t, view.Analysis)
	})
}

func TestAnalyzeVideo(t *testing.T) {
	t.Run("derives links and totals", func(t *testing.T) {
		f := newFixture(t)
		view := analyzeVideo(t, f, sampleVideo(3))

		assert.Equal(t, backendBase+"/media/Exports/clip.mp4", view.VideoLink)
		assert.Equal(t, "/tmp/raw.wav", view.AudioLink)
		assert.InDelta(t, 7.5, view.TotalDuration, 1e-9)
		require.Len(t, view.Scenes, 3)
		assert.Equal(t, "0:02.500", view.Scenes[1].Start)
		assert.Equal(t, []int{}, view.Selected)
	})

	t.Run("explicit server url wins", func(t *testing.T) {
		f := newFixture(t)
		v := sampleVideo(1)
		v.VideoURL = "https://cdn.example/v.mp4"
		view := analyzeVideo(t, f, v)
		assert.Equal(t, "https://cdn.example/v.mp4", view.VideoLink)
	})

	t.Run("missing url is rejected before any state change", func(t *testing.T) {
		f := newFixture(t)
		analyzeVideo(t, f, sampleVideo(2))
		_, err := f.ws.ToggleScene(1)
		require.NoError(t, err)

		view, err := f.ws.AnalyzeVideo(context.Background(), backend.VideoRequest{})
		var ve *backend.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Please paste a video URL.", ve.Message)
		assert.Equal(t, []int{1}, view.Selected)
		assert.Equal(t, 1, f.backend.videoCalls)
	})

	t.Run("new result clears a selection it would not fit", func(t *testing.T) {
		f := newFixture(t)
		analyzeVideo(t, f, sampleVideo(6))
		_, err := f.ws.ToggleScene(5)
		require.NoError(t, err)

		view := analyzeVideo(t, f, sampleVideo(2))
		assert.Empty(t, view.Selected)
		for _, row := range view.Scenes {
			assert.False(t, row.Selected)
		}

		_, err = f.ws.ToggleScene(5)
		assert.ErrorIs(t, err, scenes.ErrIndexOutOfRange)
	})

	t.Run("resets the remix job", func(t *testing.T) {
		f := newFixture(t)
		analyzeVideo(t, f, sampleVideo(2))
		_, err := f.ws.ToggleScene(0)
		require.NoError(t, err)
		job, err := f.ws.StartRemix(context.Background())
		require.NoError(t, err)
		assert.Equal(t, task.StatusProcessing, job.Status)

		analyzeVideo(t, f, sampleVideo(2))
		remix := f.ws.Job(task.KindRemix)
		assert.Equal(t, task.StatusIdle, remix.Status)
		assert.False(t, remix.Polling)
		assert.Equal(t, 0, f.clock.Tickers())
	})
}

func TestSceneTimes(t *testing.T) {
	f := newFixture(t)
	analyzeVideo(t, f, sampleVideo(2))

	got, err := f.ws.SceneTimes(1)
	require.NoError(t, err)
	assert.Equal(t, "2.500,5.000", got)

	_, err = f.ws.SceneTimes(2)
	assert.ErrorIs(t, err, scenes.ErrIndexOutOfRange)
}

func TestStartRemix(t *testing.T) {
	t.Run("needs an analysis", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ws.StartRemix(context.Background())
		assert.ErrorIs(t, err, scenes.ErrNoAnalysis)
		assert.Empty(t, f.backend.remixCalls())
	})

	t.Run("empty selection issues no request", func(t *testing.T) {
		f := newFixture(t)
		analyzeVideo(t, f, sampleVideo(3))

		job, err := f.ws.StartRemix(context.Background())
		assert.ErrorIs(t, err, scenes.ErrEmptySelection)
		assert.Equal(t, task.StatusIdle, job.Status)
		assert.Empty(t, f.backend.remixCalls())
	})

	t.Run("sends ordered scenes and completes", func(t *testing.T) {
		f := newFixture(t)
		v := analyzeVideo(t, f, sampleVideo(4))
		require.Len(t, v.Scenes, 4)
		for _, i := range []int{3, 1} {
			_, err := f.ws.ToggleScene(i)
			require.NoError(t, err)
		}

		job, err := f.ws.StartRemix(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "remix-1", job.ID)
		assert.True(t, job.Polling)

		calls := f.backend.remixCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, `C:\srv\Exports\clip.mp4`, calls[0].VideoPath)
		require.Len(t, calls[0].Scenes, 2)
		assert.InDelta(t, 2.5, calls[0].Scenes[0].StartSec, 1e-9)
		assert.InDelta(t, 7.5, calls[0].Scenes[1].StartSec, 1e-9)
		assert.Empty(t, f.ws.Snapshot().Video.Selected)

		f.backend.setStatus("remix-1", backend.StatusReport{
			Status:      backend.JobComplete,
			DownloadURL: "/download/remix-1.mp4",
			ServerPath:  "/srv/exports/remix-1.mp4",
		})
		require.Eventually(t, func() bool { return f.clock.Tickers() == 1 }, time.Second, 5*time.Millisecond)
		require.Equal(t, 1, f.clock.Tick())
		require.Eventually(t, func() bool {
			return f.ws.Job(task.KindRemix).Status == task.StatusComplete
		}, time.Second, 5*time.Millisecond)

		got := f.ws.Job(task.KindRemix)
		assert.Equal(t, backendBase+"/download/remix-1.mp4", got.DownloadLink)
		assert.Equal(t, "/srv/exports/remix-1.mp4", got.ServerPath)
		assert.False(t, got.Polling)
	})
}

func TestStartMedia(t *testing.T) {
	f := newFixture(t)

	_, err := f.ws.StartMedia(context.Background(), backend.MediaJobRequest{})
	var ve *backend.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Select a video first.", ve.Message)
	assert.Equal(t, task.StatusIdle, f.ws.Job(task.KindMedia).Status)

	job, err := f.ws.StartMedia(context.Background(), backend.MediaJobRequest{
		Video:  backend.Upload{Filename: "clip.mp4", Path: "/tmp/upload_1.mp4"},
		BurnIn: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "media-1", job.ID)
	assert.Equal(t, task.StatusProcessing, job.Status)
	require.Len(t, f.backend.media, 1)
	assert.True(t, f.backend.media[0].BurnIn)
}

func TestDeliverables(t *testing.T) {
	f := newFixture(t)
	assert.Empty(t, f.ws.Deliverables().Rows)

	v := sampleVideo(1)
	v.ContentDeliverables = &backend.ContentDeliverables{CarouselImages: []string{"/media/carousel/1.jpg"}}
	analyzeVideo(t, f, v)

	d := f.ws.Deliverables()
	require.Len(t, d.Rows, 4)
	assert.Equal(t, "https://www.youtube.com/shorts/xyz", d.Rows[0].AssetLink)
	assert.Equal(t, "/media/carousel/1.jpg", d.Rows[2].AssetLink)
	assert.Equal(t, "Short summary of the video content.", d.Rows[3].Caption)
}
