package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	return c, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("localhost:8080")
	assert.Error(t, err)

	c, err := NewClient(" http://localhost:8080/ ")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.BaseURL())
	assert.Equal(t, "http://localhost:8080/files/a.mp4", c.ResolveURL("/files/a.mp4"))
	assert.Equal(t, "http://localhost:8080/files/a.mp4", c.ResolveURL("files/a.mp4"))
	assert.Equal(t, "https://cdn.example/a.mp4", c.ResolveURL("https://cdn.example/a.mp4"))
	assert.Equal(t, "", c.ResolveURL(""))
}

func TestAnalyzePage(t *testing.T) {
	t.Run("returns analysis with non-fatal warnings", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/mvp/run", r.URL.Path)
			assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
			var req PageRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "https://shop.example", req.URL)
			assert.Equal(t, "sneakers", req.Keyword)

			writeJSON(w, http.StatusOK, map[string]any{
				"source":             req.URL,
				"keyword":            req.Keyword,
				"fields":             map[string]any{"title": "Shop", "h1": []string{"Sneakers"}},
				"insights":           map[string]any{"strengths": []string{"fast"}, "formula": "Hook then CTA"},
				"draft":              "Buy now.",
				"sheet_export_error": "sheet unavailable",
			})
		})

		res, err := c.AnalyzePage(context.Background(), PageRequest{URL: " https://shop.example ", Keyword: "sneakers"})
		require.NoError(t, err)
		assert.Equal(t, "Shop", res.Analysis.Fields.Title)
		assert.Equal(t, "Hook then CTA", res.Analysis.Insights.Formula)
		assert.Equal(t, "Buy now.", res.Analysis.Draft)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, Warning{Field: "sheet_export_error", Message: "sheet unavailable"}, res.Warnings[0])
	})

	t.Run("validation happens before any request", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

		_, err := c.AnalyzePage(context.Background(), PageRequest{URL: "https://shop.example"})
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "keyword", ve.Field)

		_, err = c.AnalyzePage(context.Background(), PageRequest{URL: "not a url", Keyword: "x"})
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "url", ve.Field)
		assert.Zero(t, calls.Load())
	})

	t.Run("error field in a 2xx body fails the call", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"error": "crawl blocked"})
		})
		_, err := c.AnalyzePage(context.Background(), PageRequest{URL: "https://shop.example", Keyword: "k"})
		assert.Equal(t, "crawl blocked", UserMessage(err, GenericFailure))
	})

	t.Run("non-2xx without a message uses the generic text", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := c.AnalyzePage(context.Background(), PageRequest{URL: "https://shop.example", Keyword: "k"})
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, http.StatusBadGateway, re.StatusCode)
		assert.Equal(t, GenericFailure, UserMessage(err, GenericFailure))
	})

	t.Run("detail list from request validation", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"detail": []map[string]any{{"msg": "field required"}, {"msg": "invalid url"}},
			})
		})
		_, err := c.AnalyzePage(context.Background(), PageRequest{URL: "https://shop.example", Keyword: "k"})
		assert.Equal(t, "field required; invalid url", UserMessage(err, GenericFailure))
	})
}

func TestAnalyzeVideo(t *testing.T) {
	t.Run("sends defaults as query parameters", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			q := r.URL.Query()
			assert.Equal(t, "https://www.tiktok.com/@a/video/1", q.Get("url"))
			assert.Equal(t, ".mp3", q.Get("audio_ext"))
			assert.Equal(t, "0.45", q.Get("scene_sensitivity"))
			assert.Equal(t, "10", q.Get("min_scene_gap_frames"))

			writeJSON(w, http.StatusOK, map[string]any{
				"source_url": q.Get("url"),
				"video_path": "/srv/media/videos/a.mp4",
				"scenes": []map[string]float64{
					{"start_sec": 0, "end_sec": 1.5, "duration_sec": 1.5},
					{"start_sec": 1.5, "end_sec": 4, "duration_sec": 2.5},
				},
				"stats": map[string]float64{"count": 2, "longest": 2.5},
			})
		})

		res, err := c.AnalyzeVideo(context.Background(), VideoRequest{URL: "https://www.tiktok.com/@a/video/1"})
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Len(t, res.Scenes, 2)
		assert.Equal(t, 2.5, res.Stats.Longest)
	})

	t.Run("ok false is a failure with its detail", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "detail": "download failed"})
		})
		_, err := c.AnalyzeVideo(context.Background(), VideoRequest{URL: "https://x"})
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "download failed", UserMessage(err, GenericFailure))
	})

	t.Run("rejects out of range options", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		for _, req := range []VideoRequest{
			{},
			{URL: "https://x", SceneSensitivity: 0.95},
			{URL: "https://x", MinSceneGapFrames: -2},
			{URL: "https://x", AudioFormat: ".ogg"},
		} {
			_, err := c.AnalyzeVideo(context.Background(), req)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		}
		assert.Zero(t, calls.Load())
	})

	t.Run("malformed body is a transport error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = io.WriteString(w, "<html>")
		})
		_, err := c.AnalyzeVideo(context.Background(), VideoRequest{URL: "https://x"})
		var te *TransportError
		assert.ErrorAs(t, err, &te)
	})
}

func TestStartMediaJob(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(video, []byte("video-bytes"), 0o644))
	bgm := filepath.Join(dir, "music.mp3")
	require.NoError(t, os.WriteFile(bgm, []byte("bgm-bytes"), 0o644))

	t.Run("streams files and form fields", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/process", r.URL.Path)
			require.NoError(t, r.ParseMultipartForm(1<<20))

			f, hdr, err := r.FormFile("video")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "upload.mp4", hdr.Filename)
			assert.Equal(t, "video-bytes", string(body))

			_, bgmHdr, err := r.FormFile("bgm")
			require.NoError(t, err)
			assert.Equal(t, "music.mp3", bgmHdr.Filename)

			assert.Equal(t, "true", r.FormValue("burn_in"))
			assert.Equal(t, "false", r.FormValue("flip"))
			assert.Equal(t, "vi", r.FormValue("language"))

			writeJSON(w, http.StatusOK, map[string]any{"status": "processing", "job_id": "abc123"})
		})

		ack, err := c.StartMediaJob(context.Background(), MediaJobRequest{
			Video:    Upload{Filename: "upload.mp4", Path: video},
			BGM:      &Upload{Path: bgm},
			BurnIn:   true,
			Language: "vi",
		})
		require.NoError(t, err)
		assert.Equal(t, "abc123", ack.JobID)
	})

	t.Run("requires a video", func(t *testing.T) {
		c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
		_, err := c.StartMediaJob(context.Background(), MediaJobRequest{})
		assert.Equal(t, "Select a video first.", UserMessage(err, ""))
		assert.Zero(t, calls.Load())
	})

	t.Run("rejected start carries the server error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			writeJSON(w, http.StatusBadRequest, map[string]any{"status": "failed", "error": "File save error: disk full"})
		})
		_, err := c.StartMediaJob(context.Background(), MediaJobRequest{Video: Upload{Path: video}})
		assert.Equal(t, "File save error: disk full", UserMessage(err, "Failed to start job."))
	})

	t.Run("unacknowledged 2xx start falls back", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			writeJSON(w, http.StatusOK, map[string]any{"status": "queued"})
		})
		_, err := c.StartMediaJob(context.Background(), MediaJobRequest{Video: Upload{Path: video}})
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, "Failed to start job.", UserMessage(err, "Failed to start job."))
	})

	ackCases := []struct {
		name string
		body string
		want string
	}{
		{"missing status", `{"job_id":"x"}`, "Failed to start job."},
		{"empty object", `{}`, "Failed to start job."},
		{"numeric job id", `{"status":"processing","job_id":42}`, "Failed to start job."},
		{"numeric error keeps fallback", `{"error":7}`, "Failed to start job."},
		{"error text on a bad shape", `{"status":3,"error":"quota exceeded"}`, "quota exceeded"},
	}
	for _, tc := range ackCases {
		t.Run("ill-formed ack: "+tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.StartMediaJob(context.Background(), MediaJobRequest{Video: Upload{Path: video}})
			var re *RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.want, UserMessage(err, "Failed to start job."))
		})
	}

	t.Run("non-json ack is a transport error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			_, _ = io.WriteString(w, "<html>gateway</html>")
		})
		_, err := c.StartMediaJob(context.Background(), MediaJobRequest{Video: Upload{Path: video}})
		var te *TransportError
		assert.ErrorAs(t, err, &te)
	})
}

func TestStartRemixJob(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req RemixRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/srv/videos/a.mp4", req.VideoPath)
		assert.Len(t, req.Scenes, 2)
		writeJSON(w, http.StatusOK, map[string]any{"status": "processing", "job_id": "rmx1"})
	})

	_, err := c.StartRemixJob(context.Background(), RemixRequest{VideoPath: "/srv/videos/a.mp4"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Zero(t, calls.Load())

	ack, err := c.StartRemixJob(context.Background(), RemixRequest{
		VideoPath: "/srv/videos/a.mp4",
		Scenes:    []SceneSegment{{0, 1, 1}, {3, 4, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, "rmx1", ack.JobID)
}

func TestJobStatus(t *testing.T) {
	t.Run("complete report", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/process/status/abc123", r.URL.Path)
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "complete", "download_url": "/files/abc123.mp4", "server_path": "/srv/exports/abc123.mp4",
			})
		})
		report, err := c.JobStatus(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, JobComplete, report.Status)
		assert.Equal(t, "/files/abc123.mp4", report.DownloadURL)
		assert.Equal(t, "/srv/exports/abc123.mp4", report.ServerPath)
	})

	t.Run("not found", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Job not found."})
		})
		_, err := c.JobStatus(context.Background(), "gone")
		assert.True(t, errors.Is(err, ErrJobNotFound))
	})

	t.Run("server error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		_, err := c.JobStatus(context.Background(), "abc")
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.False(t, errors.Is(err, ErrJobNotFound))
	})

	t.Run("payload without status is still running", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"download_url": "/x"})
		})
		report, err := c.JobStatus(context.Background(), "abc")
		require.NoError(t, err)
		assert.NotEqual(t, JobComplete, report.Status)
		assert.NotEqual(t, JobFailed, report.Status)
	})

	t.Run("mistyped status is rejected", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": 5})
		})
		_, err := c.JobStatus(context.Background(), "abc")
		var te *TransportError
		assert.ErrorAs(t, err, &te)
	})

	t.Run("hung request is bounded by the caller", func(t *testing.T) {
		release := make(chan struct{})
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := c.JobStatus(ctx, "abc")
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
