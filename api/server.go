package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zaynkorai/research-agent/agent"
	"github.com/zaynkorai/research-agent/citation"
	"github.com/zaynkorai/research-agent/metrics"
	"github.com/zaynkorai/research-agent/session"
	"github.com/zaynkorai/research-agent/streaming"
)

// Researcher runs the research loop for a session.
type Researcher interface {
	Stream(ctx context.Context, sess *session.Session, emit agent.EmitFunc) (agent.FinalAnswer, error)
}

type Server struct {
	Engine *gin.Engine

	researcher Researcher
	sessions   session.Store
	streams    *streaming.Manager
	config     agent.Configuration
	logger     *zap.Logger

	// one research run or reset per thread at a time; entries are never removed so a
	// thread keeps the same mutex for the life of the process
	locks sync.Map
}

func NewServer(researcher Researcher, sessions session.Store, streams *streaming.Manager, config agent.Configuration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{
		Engine:     engine,
		researcher: researcher,
		sessions:   sessions,
		streams:    streams,
		config:     config,
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Engine.Group("/api")
	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.GET("/sessions/:id/events", s.sessionEvents)
	api.GET("/sessions/:id/ws", s.sessionWebSocket)
	api.POST("/research", s.research)
	api.POST("/research/stream", s.researchStream)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	sess := s.config.NewSession(req.Overrides)
	if err := s.sessions.Save(c.Request.Context(), sess); err != nil {
		s.logger.Error("Failed to save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to create session"})
		return
	}
	metrics.SessionsCreated.Inc()
	c.JSON(http.StatusCreated, CreateSessionResponse{
		ThreadID:                sess.ThreadID,
		MaxResearchLoops:        sess.MaxResearchLoops,
		InitialSearchQueryCount: sess.InitialSearchQueryCount,
	})
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.loadSession(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(sess))
}

// deleteSession resets a conversation: the transcript, counters and citation mapping go away.
// A thread with a run in progress cannot be reset.
func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("id")
	lock := s.lockFor(id)
	if !lock.TryLock() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "a research run is in progress", ThreadID: id})
		return
	}
	defer lock.Unlock()

	if err := s.sessions.Delete(c.Request.Context(), id); err != nil {
		s.logger.Error("Failed to delete session", zap.String("thread_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to reset session", ThreadID: id})
		return
	}
	s.streams.Forget(id)
	metrics.SessionsReset.Inc()
	c.Status(http.StatusNoContent)
}

func (s *Server) loadSession(c *gin.Context, id string) (*session.Session, bool) {
	sess, err := s.sessions.Get(c.Request.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), ThreadID: id})
		return nil, false
	}
	if err != nil {
		s.logger.Error("Failed to load session", zap.String("thread_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load session", ThreadID: id})
		return nil, false
	}
	return sess, true
}

// beginRun loads or creates the thread for req, takes its run lock and records the question.
// The returned release func must be called once the run is over.
func (s *Server) beginRun(c *gin.Context, req ResearchRequest) (*session.Session, func(), bool) {
	var sess *session.Session
	if req.ThreadID == "" {
		sess = s.config.NewSession(req.Overrides)
		metrics.SessionsCreated.Inc()
	} else {
		var ok bool
		if sess, ok = s.loadSession(c, req.ThreadID); !ok {
			return nil, nil, false
		}
	}

	lock := s.lockFor(sess.ThreadID)
	if !lock.TryLock() {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "a research run is already in progress", ThreadID: sess.ThreadID})
		return nil, nil, false
	}
	sess.AddUserMessage(req.Question)
	return sess, lock.Unlock, true
}

func (s *Server) lockFor(threadID string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(threadID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// persist stores the session even if the client has gone away.
func (s *Server) persist(ctx context.Context, sess *session.Session) {
	if err := s.sessions.Save(context.WithoutCancel(ctx), sess); err != nil {
		s.logger.Error("Failed to save session", zap.String("thread_id", sess.ThreadID), zap.Error(err))
	}
}

// publisher forwards research events to the session's subscribers and to next, if set.
func (s *Server) publisher(threadID string, next func(streaming.Event)) agent.EmitFunc {
	return func(evt agent.Event) error {
		stored := s.streams.Publish(threadID, toStreamEvent(evt))
		if next != nil {
			next(stored)
		}
		return nil
	}
}

func (s *Server) research(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	sess, release, ok := s.beginRun(c, req)
	if !ok {
		return
	}
	defer release()

	answer, err := s.researcher.Stream(c.Request.Context(), sess, s.publisher(sess.ThreadID, nil))
	s.persist(c.Request.Context(), sess)
	resp := s.response(sess, answer, err)
	s.streams.Publish(sess.ThreadID, doneEvent(resp))
	c.JSON(http.StatusOK, resp)
}

// response builds the reply for a finished run. A failed run answers with the apology the
// workflow recorded in the thread; the error itself is only logged.
func (s *Server) response(sess *session.Session, answer agent.FinalAnswer, err error) ResearchResponse {
	resp := ResearchResponse{ThreadID: sess.ThreadID, Stats: sess.Stats()}
	if err == nil {
		resp.Answer = answer.Present()
		return resp
	}
	s.logger.Error("Research failed", zap.String("thread_id", sess.ThreadID), zap.Error(err))
	resp.Failed = true
	resp.Answer = agent.Presentation{Text: agent.Apology, References: []citation.Source{}}
	if n := len(sess.Messages); n > 0 && sess.Messages[n-1].Role == session.RoleAssistant {
		last := sess.Messages[n-1]
		resp.Answer.Text = last.Content
		if last.Sources != nil {
			resp.Answer.References = last.Sources
		}
	}
	return resp
}

// researchStream runs a question and streams node events as SSE. The last event is always
// "done" with the answer or the apology.
func (s *Server) researchStream(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	sess, release, ok := s.beginRun(c, req)
	if !ok {
		return
	}
	defer release()

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	fmt.Fprintf(c.Writer, ": research started for thread %s\n\n", sess.ThreadID)
	c.Writer.Flush()

	write := func(evt streaming.Event) {
		writeSSE(c.Writer, evt)
		c.Writer.Flush()
	}
	answer, err := s.researcher.Stream(c.Request.Context(), sess, s.publisher(sess.ThreadID, write))
	s.persist(c.Request.Context(), sess)
	write(s.streams.Publish(sess.ThreadID, doneEvent(s.response(sess, answer, err))))
}

// SetupFrontend serves the built chat UI under /app.
func (s *Server) SetupFrontend(buildDir string) {
	absBuildPath, err := filepath.Abs(buildDir)
	if err != nil {
		s.logger.Warn("Could not resolve frontend build directory", zap.String("dir", buildDir), zap.Error(err))
		s.Engine.Any("/app/*path", func(c *gin.Context) {
			c.String(http.StatusServiceUnavailable, "Frontend build path could not be resolved. Check server configuration.")
		})
		return
	}

	indexPath := filepath.Join(absBuildPath, "index.html")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		s.logger.Warn("Frontend build directory not found or incomplete", zap.String("dir", absBuildPath))
		s.Engine.Any("/app/*path", func(c *gin.Context) {
			c.String(http.StatusServiceUnavailable, "Frontend not built or incomplete. Run 'npm run build' in the frontend directory.")
		})
		return
	}

	s.Engine.StaticFS("/app", http.Dir(absBuildPath))

	s.Engine.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/app/") {
			http.ServeFile(c.Writer, c.Request, indexPath)
			return
		}
		c.Status(http.StatusNotFound)
	})

	s.logger.Info("Frontend serving", zap.String("dir", absBuildPath))
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, port string) error {
	if port == "" {
		port = "8123"
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           s.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
