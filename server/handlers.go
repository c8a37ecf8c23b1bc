package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alan-mat/docqa/internal/document"
	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/splitter"
	"github.com/alan-mat/docqa/internal/tasks"
	"github.com/alan-mat/docqa/internal/transport"
)

const (
	maxStreamReadFails = 10
	streamRetryDelay   = 100 * time.Millisecond
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) index(c *gin.Context) {
	ctx := c.Request.Context()
	id := getSessionID(c)

	sess, err := s.qa.Session(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	history, err := s.qa.History(ctx, id)
	if err != nil {
		abortWithError(c, err)
		return
	}

	chunkSize := s.config.DefaultChunkSize
	if sess.ChunkSize > 0 {
		chunkSize = sess.ChunkSize
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":        PageTitle,
		"Ready":        sess.Ready,
		"Document":     sess.Document,
		"Warning":      qa.NotReadyMessage,
		"History":      session.RenderHistory(history),
		"ChunkSize":    chunkSize,
		"MinChunkSize": splitter.MinChunkSize,
		"MaxChunkSize": splitter.MaxChunkSize,
	})
}

func (s *Server) uploadDocument(c *gin.Context) {
	if c.Request.ContentLength > s.config.MaxUploadBytes {
		abortWithError(c, errTooLarge)
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			abortWithError(c, err)
			return
		}
		abortWithError(c, fmt.Errorf("%w: missing file", qa.ErrNotPDF))
		return
	}

	chunkSize := s.config.DefaultChunkSize
	if v := c.PostForm("chunk_size"); v != "" {
		chunkSize, err = strconv.Atoi(v)
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: '%s'", splitter.ErrInvalidChunkSize, v))
			return
		}
	}
	if chunkSize < splitter.MinChunkSize || chunkSize > splitter.MaxChunkSize {
		abortWithError(c, fmt.Errorf("%w: %d not in [%d, %d]", splitter.ErrInvalidChunkSize,
			chunkSize, splitter.MinChunkSize, splitter.MaxChunkSize))
		return
	}

	f, err := fh.Open()
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !document.IsPDF(fh.Filename, data) {
		abortWithError(c, fmt.Errorf("%w: '%s'", qa.ErrNotPDF, fh.Filename))
		return
	}

	job, err := s.dispatcher.Dispatch(c.Request.Context(), tasks.IndexPayload{
		SessionID: getSessionID(c),
		Filename:  fh.Filename,
		Content:   data,
		ChunkSize: chunkSize,
	})
	if err != nil {
		jobID := ""
		if job != nil {
			jobID = job.ID
		}
		abortWithJobError(c, err, jobID)
		return
	}

	status := http.StatusOK
	if job.Status == transport.TraceStatusQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, job)
}

func (s *Server) jobTrace(c *gin.Context) (*transport.Trace, bool) {
	trace, err := s.transport.GetTrace(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	if trace.Session != getSessionID(c) {
		abortWithError(c, transport.ErrTraceNotFound)
		return nil, false
	}
	return trace, true
}

func (s *Server) getJob(c *gin.Context) {
	trace, ok := s.jobTrace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, trace)
}

// getJobEvents returns the progress messages of a job. With follow=true the
// messages are streamed as server-sent events until the job finishes.
func (s *Server) getJobEvents(c *gin.Context) {
	trace, ok := s.jobTrace(c)
	if !ok {
		return
	}

	ms, err := s.transport.GetMessageStream(trace.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if c.Query("follow") != "true" {
		events, err := ms.ReadAll(ctx)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": trace.ID, "events": events})
		return
	}

	readFails := 0
	c.Stream(func(w io.Writer) bool {
		msg, err := ms.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			s.logger.Warn("failed to read from stream", "stream", trace.ID, "err", err)
			readFails += 1
			if readFails >= maxStreamReadFails {
				s.logger.Error("exceeded stream read attempts, failed", "id", trace.ID)
				return false
			}
			time.Sleep(streamRetryDelay)
			return true
		}
		readFails = 0

		c.SSEvent("progress", msg)
		return !msg.Final()
	})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.qa.Session(c.Request.Context(), getSessionID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

type askRequest struct {
	Query string `json:"query"`
}

func (s *Server) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, fmt.Errorf("%w: %v", qa.ErrEmptyQuery, err))
		return
	}

	answer, err := s.qa.Ask(c.Request.Context(), getSessionID(c), req.Query)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (s *Server) getHistory(c *gin.Context) {
	entries, err := s.qa.History(c.Request.Context(), getSessionID(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"history": session.RenderHistory(entries),
		"entries": entries,
	})
}
