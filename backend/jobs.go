package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	opMediaStart = "media job start"
	opRemixStart = "remix job start"
	opStatus     = "job status"
)

// Validate reports a media job without a video.
func (r MediaJobRequest) Validate() error {
	if r.Video.Path == "" {
		return &ValidationError{Field: "video", Message: "Select a video first."}
	}
	return nil
}

// Validate reports a remix request the backend could not act on.
func (r RemixRequest) Validate() error {
	if strings.TrimSpace(r.VideoPath) == "" {
		return &ValidationError{Field: "video_path", Message: "Please run the video analyzer first."}
	}
	if len(r.Scenes) == 0 {
		return &ValidationError{Field: "scenes", Message: "No scenes were selected. Please check the boxes in the scene table."}
	}
	return nil
}

// StartMediaJob uploads the video (and optional background music) to
// /process. The files are streamed from disk rather than buffered.
func (c *Client) StartMediaJob(ctx context.Context, req MediaJobRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMediaForm(mw, req))
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/process", nil), pr)
	if err != nil {
		pr.Close()
		return Ack{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	return c.startJob(opMediaStart, httpReq)
}

func writeMediaForm(mw *multipart.Writer, req MediaJobRequest) error {
	if err := writeFilePart(mw, "video", req.Video); err != nil {
		return err
	}
	if req.BGM != nil && req.BGM.Path != "" {
		if err := writeFilePart(mw, "bgm", *req.BGM); err != nil {
			return err
		}
	}
	if err := mw.WriteField("burn_in", strconv.FormatBool(req.BurnIn)); err != nil {
		return err
	}
	if err := mw.WriteField("flip", strconv.FormatBool(req.Flip)); err != nil {
		return err
	}
	if lang := strings.TrimSpace(req.Language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeFilePart(mw *multipart.Writer, field string, up Upload) error {
	f, err := os.Open(up.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", field, err)
	}
	defer f.Close()

	name := up.Filename
	if name == "" {
		name = filepath.Base(up.Path)
	}
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", field, err)
	}
	return nil
}

// StartRemixJob asks /remix to assemble the kept scenes, in order.
func (c *Client) StartRemixJob(ctx context.Context, req RemixRequest) (Ack, error) {
	if err := req.Validate(); err != nil {
		return Ack{}, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := c.newJSONRequest(ctx, http.MethodPost, c.endpoint("/remix", nil), req)
	if err != nil {
		return Ack{}, err
	}
	return c.startJob(opRemixStart, httpReq)
}

// startJob accepts only {status:"processing", job_id}. Any other JSON reply
// is a RequestError carrying the backend's error text, if any; only a body
// that is not JSON is a TransportError.
func (c *Client) startJob(op string, req *http.Request) (Ack, error) {
	res, err := c.do(op, req)
	if err != nil {
		return Ack{}, err
	}
	if !res.ok() {
		return Ack{}, &RequestError{Op: op, StatusCode: res.status, ServerMessage: serverMessage(res.body)}
	}

	var ack Ack
	if err := decodeValidated(c.schemas.ack, res.body, &ack); err != nil {
		if errors.Is(err, errUnexpectedShape) {
			c.logger.Warn("unacknowledged job start", "op", op, "error", err)
			return Ack{}, &RequestError{Op: op, StatusCode: res.status, ServerMessage: serverMessage(res.body)}
		}
		return Ack{}, &TransportError{Op: op, Err: err}
	}
	if JobState(ack.Status) != JobProcessing || ack.JobID == "" {
		return Ack{}, &RequestError{Op: op, StatusCode: res.status, ServerMessage: ack.Error}
	}
	return ack, nil
}

// JobStatus polls /process/status/{id} once. A 404 is reported as
// ErrJobNotFound; other non-2xx answers are RequestErrors.
func (c *Client) JobStatus(ctx context.Context, jobID string) (StatusReport, error) {
	req, err := c.newJSONRequest(ctx, http.MethodGet, c.endpoint("/process/status/"+url.PathEscape(jobID), nil), nil)
	if err != nil {
		return StatusReport{}, err
	}

	res, err := c.do(opStatus, req)
	if err != nil {
		return StatusReport{}, err
	}
	if res.status == http.StatusNotFound {
		return StatusReport{}, fmt.Errorf("%s %s: %w", opStatus, jobID, ErrJobNotFound)
	}
	if !res.ok() {
		return StatusReport{}, &RequestError{Op: opStatus, StatusCode: res.status, ServerMessage: serverMessage(res.body)}
	}

	var report StatusReport
	if err := decodeValidated(c.schemas.status, res.body, &report); err != nil {
		return StatusReport{}, &TransportError{Op: opStatus, Err: err}
	}
	return report, nil
}
