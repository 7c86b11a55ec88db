// Package server exposes a meshwarp editing session over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	meshwarp "github.com/gino07172002/testMeshWarp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server serializes every request on a single editing session.
type Server struct {
	mu      sync.Mutex
	session *meshwarp.Session
	log     *zap.Logger
	draw    meshwarp.DrawOptions
	router  *gin.Engine
}

// New returns a server over s. A nil logger discards logs.
func New(s *meshwarp.Session, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		session: s,
		log:     logger.With(zap.String("session", s.ID)),
		draw:    meshwarp.DefaultDrawOptions(),
	}
	srv.router = srv.routes()
	return srv
}

// SetDrawOptions changes how the wireframe overlay is drawn.
func (s *Server) SetDrawOptions(o meshwarp.DrawOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draw = o
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	img := r.Group("/image")
	{
		img.GET("", s.sourceImage)
		img.GET("/warped", s.warpedImage)
		img.GET("/mesh.svg", s.meshSVG)
	}
	api := r.Group("/api")
	{
		api.POST("/points", s.points)
		api.POST("/clickStart", s.clickStart)
		api.POST("/drag", s.drag)
		api.POST("/dragDone", s.dragDone)
		api.POST("/tool", s.setTool)
		api.POST("/reset", s.reset)
		api.GET("/layer", s.getLayer)
		api.POST("/layer", s.applyLayer)
		api.GET("/ws", s.stream)
	}
	return r
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", addr))
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Debug("request", fields...)
	}
}
