package api

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketingflow/backend"
	"marketingflow/deliverables"
	"marketingflow/logging"
	"marketingflow/scenes"
	"marketingflow/spool"
	"marketingflow/task"
	"marketingflow/workspace"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	ws     *workspace.Workspace
	spool  *spool.Spool
	logger *slog.Logger
}

func NewHandler(ws *workspace.Workspace, sp *spool.Spool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		ws:     ws,
		spool:  sp,
		logger: logging.WithComponent(logger, "api"),
	}
}

// respondError maps err onto a status code and the message shown to the user.
func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	var ve *backend.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, scenes.ErrIndexOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": "Scene not found"})
	case errors.Is(err, spool.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, spool.ErrInsufficientResources):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": backend.UserMessage(err, fallback)})
	}
}

func (h *Handler) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, h.ws.Snapshot())
}

type pageAnalyzeRequest struct {
	URL     string `json:"url"`
	Keyword string `json:"keyword"`
}

func (h *Handler) handleAnalyzePage(c *gin.Context) {
	var req pageAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.ws.AnalyzePage(c.Request.Context(), backend.PageRequest{URL: req.URL, Keyword: req.Keyword})
	if err != nil {
		h.respondError(c, err, backend.GenericFailure)
		return
	}
	c.JSON(http.StatusOK, view)
}

type videoAnalyzeRequest struct {
	URL               string  `json:"url"`
	AudioFormat       string  `json:"audio_format"`
	SceneSensitivity  float64 `json:"scene_sensitivity"`
	MinSceneGapFrames int     `json:"min_scene_gap_frames"`
}

func (h *Handler) handleAnalyzeVideo(c *gin.Context) {
	var req videoAnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.ws.AnalyzeVideo(c.Request.Context(), backend.VideoRequest{
		URL:               req.URL,
		AudioFormat:       backend.AudioFormat(req.AudioFormat),
		SceneSensitivity:  req.SceneSensitivity,
		MinSceneGapFrames: req.MinSceneGapFrames,
	})
	if err != nil {
		h.respondError(c, err, backend.GenericFailure)
		return
	}
	c.JSON(http.StatusOK, view)
}

func sceneIndex(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Scene index must be a number"})
		return 0, false
	}
	return i, true
}

func (h *Handler) handleToggleScene(c *gin.Context) {
	i, ok := sceneIndex(c)
	if !ok {
		return
	}
	selected, err := h.ws.ToggleScene(i)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": selected})
}

func (h *Handler) handleSceneTimes(c *gin.Context) {
	i, ok := sceneIndex(c)
	if !ok {
		return
	}
	text, err := h.ws.SceneTimes(i)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"times": text})
}

func (h *Handler) handleClearSelection(c *gin.Context) {
	h.ws.ClearSelection()
	c.JSON(http.StatusOK, gin.H{"selected": []int{}})
}

// stageFormFile spools an optional multipart file. A missing part gives nil.
func (h *Handler) stageFormFile(c *gin.Context, field string) (*spool.File, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, &backend.ValidationError{Field: field, Message: fmt.Sprintf("Could not read %s upload.", field), Err: err}
	}
	return h.stage(header)
}

func (h *Handler) stage(header *multipart.FileHeader) (*spool.File, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return h.spool.Stage(header.Filename, src)
}

func (h *Handler) handleStartMedia(c *gin.Context) {
	burnIn, err := strconv.ParseBool(c.DefaultPostForm("burn_in", "true"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "burn_in must be a boolean"})
		return
	}
	flip, err := strconv.ParseBool(c.DefaultPostForm("flip", "false"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flip must be a boolean"})
		return
	}

	req := backend.MediaJobRequest{
		BurnIn:   burnIn,
		Flip:     flip,
		Language: c.PostForm("language"),
	}

	video, err := h.stageFormFile(c, "video")
	if err != nil {
		h.respondError(c, err, task.MediaMessages.StartFailed)
		return
	}
	if video != nil {
		defer video.Remove()
		req.Video = backend.Upload{Filename: video.Filename, Path: video.Path}
	}

	bgm, err := h.stageFormFile(c, "bgm")
	if err != nil {
		h.respondError(c, err, task.MediaMessages.StartFailed)
		return
	}
	if bgm != nil {
		defer bgm.Remove()
		req.BGM = &backend.Upload{Filename: bgm.Filename, Path: bgm.Path}
	}

	job, err := h.ws.StartMedia(c.Request.Context(), req)
	h.respondJob(c, job, err, task.MediaMessages.StartFailed)
}

func (h *Handler) handleStartRemix(c *gin.Context) {
	job, err := h.ws.StartRemix(c.Request.Context())
	h.respondJob(c, job, err, task.RemixMessages.StartFailed)
}

// respondJob answers a job start. A rejected start still returns the
// failed job so the view can render it.
func (h *Handler) respondJob(c *gin.Context, job workspace.JobView, err error, fallback string) {
	var ve *backend.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, job)
	case errors.As(err, &ve):
		h.respondError(c, err, fallback)
	case errors.Is(err, task.ErrStartSuperseded):
		c.JSON(http.StatusConflict, gin.H{"error": "Start was replaced by a newer request", "job": job})
	default:
		h.logger.Warn("job start rejected", "kind", job.Kind, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": job.Error, "job": job})
	}
}

func (h *Handler) handleGetJob(c *gin.Context) {
	kind, ok := task.ParseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown job kind"})
		return
	}
	c.JSON(http.StatusOK, h.ws.Job(kind))
}

func (h *Handler) handleDeliverables(c *gin.Context) {
	c.JSON(http.StatusOK, h.ws.Deliverables())
}

func attachment(c *gin.Context, filename string) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

func (h *Handler) handleExportCSV(c *gin.Context) {
	rows := h.ws.Deliverables().Rows
	if len(rows) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	attachment(c, deliverables.CSVFilename)
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	if err := deliverables.WriteCSV(c.Writer, rows); err != nil {
		h.logger.Warn("csv export interrupted", "error", err)
	}
}

func (h *Handler) handleExportXLSX(c *gin.Context) {
	data, err := deliverables.BuildWorkbook(h.ws.Deliverables().Rows)
	if errors.Is(err, deliverables.ErrNoRows) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.logger.Error("could not build workbook", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build spreadsheet"})
		return
	}
	attachment(c, deliverables.XLSXFilename)
	c.Data(http.StatusOK, xlsxContentType, data)
}
