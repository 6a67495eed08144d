package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"image-harvester/internal/collector"
	"image-harvester/internal/domain"
)

// startRequest mirrors the form posted by the index page.
type startRequest struct {
	URL    string `json:"url" form:"url"`
	Folder string `json:"folder" form:"folder"`
}

// statusResponse is the job snapshot plus the flat fields the index page polls.
type statusResponse struct {
	domain.Job
	Done  bool     `json:"done"`
	Error bool     `json:"error"`
	Logs  []string `json:"logs"`
}

// eventsResponse carries log entries newer than the requested sequence.
type eventsResponse struct {
	Entries  []domain.LogEntry `json:"entries"`
	LastSeq  int64             `json:"lastSeq"`
	State    domain.JobState   `json:"state"`
	Progress int               `json:"progress"`
}

func newStatusResponse(job domain.Job) statusResponse {
	return statusResponse{
		Job:   job,
		Done:  job.State == domain.JobStateDone,
		Error: job.State == domain.JobStateFailed,
		Logs: lo.Map(job.Log, func(entry domain.LogEntry, _ int) string {
			return entry.Message
		}),
	}
}

func newEventsResponse(entries []domain.LogEntry, job domain.Job, since int64) eventsResponse {
	if entries == nil {
		entries = []domain.LogEntry{}
	}
	last := since
	if n := len(entries); n > 0 {
		last = entries[n-1].Seq
	}
	return eventsResponse{Entries: entries, LastSeq: last, State: job.State, Progress: job.Progress}
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"Title": "Image Harvester"})
}

func (s *Server) health(c *gin.Context) {
	if s.diagnostics == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	report := s.diagnostics()
	code := http.StatusOK
	if report.HasFailures {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (s *Server) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	id, err := s.svc.Submit(req.URL, req.Folder)
	switch {
	case errors.Is(err, collector.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, collector.ErrLabelInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, collector.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Error("submit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot start job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": id})
}

func (s *Server) status(c *gin.Context) {
	job, ok := s.svc.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(job))
}

func (s *Server) download(c *gin.Context) {
	id := c.Param("id")
	f, err := s.svc.Archive(id)
	if errors.Is(err, collector.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive not ready"})
		return
	}
	if err != nil {
		s.logger.Error("open archive", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot open archive"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot open archive"})
		return
	}
	name := filepath.Base(f.Name())
	c.DataFromReader(http.StatusOK, info.Size(), "application/zip", f, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}

func (s *Server) list(c *gin.Context) {
	jobs := s.svc.List()
	if state := domain.JobState(c.Query("state")); state != "" {
		jobs = lo.Filter(jobs, func(job domain.Job, _ int) bool {
			return job.State == state
		})
	}
	c.JSON(http.StatusOK, jobs)
}

func (s *Server) cancel(c *gin.Context) {
	err := s.svc.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, collector.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, collector.ErrNotRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
	}
}

func (s *Server) events(c *gin.Context) {
	id := c.Param("id")
	since, err := parseSince(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.Query("wait") != "1" {
		entries, ok := s.svc.Events(id, since)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		job, _ := s.svc.Status(id)
		c.JSON(http.StatusOK, newEventsResponse(entries, job, since))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.longPoll)
	defer cancel()
	entries, job, err := s.svc.WaitEvents(ctx, id, since)
	switch {
	case errors.Is(err, collector.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newEventsResponse(entries, job, since))
}

func parseSince(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, fmt.Errorf("since must be a non-negative integer")
	}
	return since, nil
}
