package service

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"treadmill/internal/common/http/middleware"
	"treadmill/internal/common/queue"
	"treadmill/internal/judge/config"
	"treadmill/pkg/errors"
	"treadmill/pkg/utils/logger"
	"treadmill/pkg/utils/response"
)

// DebugServer exposes liveness and queue depths for operators. It
// carries no judge API of its own.
type DebugServer struct {
	broker queue.Broker
	queues []string
	srv    *http.Server
}

func NewDebugServer(cfg *config.Config, broker queue.Broker) *DebugServer {
	s := &DebugServer{
		broker: broker,
		queues: []string{cfg.Queue.Normal, cfg.Queue.Rejudge, cfg.Queue.Retry},
	}
	s.srv = &http.Server{Addr: cfg.Debug.Addr, Handler: s.routes()}
	return s
}

func (s *DebugServer) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.TraceContext())
	r.Use(requestLogger())
	r.GET("/healthz", s.healthz)
	r.GET("/debug/queues", s.queueDepths)
	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Debug(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

func (s *DebugServer) healthz(c *gin.Context) {
	if err := s.broker.Ping(c.Request.Context()); err != nil {
		response.Error(c, errors.Wrap(err, errors.QueueError))
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}

func (s *DebugServer) queueDepths(c *gin.Context) {
	depths := make(map[string]int64, len(s.queues))
	for _, q := range s.queues {
		n, err := s.broker.Depth(c.Request.Context(), q)
		if err != nil {
			response.Error(c, err)
			return
		}
		depths[q] = n
	}
	response.Success(c, depths)
}

// Handler returns the route table, mainly for tests
func (s *DebugServer) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks serving the debug API
func (s *DebugServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight requests
func (s *DebugServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
