// Copyright 2025 Alan Matykiewicz
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to use,
// copy, modify, merge, publish, distribute, sublicense, and/or sell copies of the
// Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND,
// EXPRESS OR IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES
// OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND
// NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT
// HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
// WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR
// OTHER DEALINGS IN THE SOFTWARE.

package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/alan-mat/docqa/internal/qa"
	"github.com/alan-mat/docqa/internal/session"
	"github.com/alan-mat/docqa/internal/splitter"
	"github.com/alan-mat/docqa/internal/tasks"
	"github.com/alan-mat/docqa/internal/transport"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	PageTitle = "PDF Question Answering System"

	shutdownTimeout = 10 * time.Second
)

type ServerConfig struct {
	ListenAddr string

	MaxUploadBytes    int64
	RequestsPerSecond float64
	Burst             int
	AllowedOrigins    []string
	SecureCookies     bool

	DefaultChunkSize int
}

func DefaultConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        ":8080",
		MaxUploadBytes:    20 << 20,
		RequestsPerSecond: 5,
		Burst:             20,
		DefaultChunkSize:  splitter.DefaultChunkSize,
	}
}

// QAService is the subset of [qa.Service] used by the handlers.
type QAService interface {
	Ask(ctx context.Context, sessionID, question string) (*qa.Answer, error)
	Session(ctx context.Context, sessionID string) (*session.Session, error)
	History(ctx context.Context, sessionID string) ([]session.HistoryEntry, error)
}

type Server struct {
	config ServerConfig

	qa         QAService
	dispatcher tasks.Dispatcher
	transport  transport.Transport

	engine *gin.Engine
	logger *slog.Logger
}

func New(config ServerConfig, svc QAService, dispatcher tasks.Dispatcher, transport transport.Transport) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if config.DefaultChunkSize == 0 {
		config.DefaultChunkSize = splitter.DefaultChunkSize
	}

	s := &Server{
		config:     config,
		qa:         svc,
		dispatcher: dispatcher,
		transport:  transport,
		logger:     slog.Default(),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.logger))

	corsConfig := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
		corsConfig.AllowCredentials = true
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, RequestIDHeader)
	r.Use(cors.New(corsConfig))

	r.Use(newRateLimiter(s.config.RequestsPerSecond, s.config.Burst).middleware())

	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(templatesFS, "templates/*.html")))

	r.GET("/healthz", s.health)

	sessioned := r.Group("/", sessionID(s.config.SecureCookies))
	sessioned.GET("/", s.index)

	api := sessioned.Group("/api")
	api.POST("/documents", s.uploadDocument)
	api.GET("/jobs/:id", s.getJob)
	api.GET("/jobs/:id/events", s.getJobEvents)
	api.GET("/session", s.getSession)
	api.POST("/ask", s.ask)
	api.GET("/history", s.getHistory)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve listens on the configured address until ctx is canceled, then
// shuts the server down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", "listener", s.config.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("failed to serve", "err", err)
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
