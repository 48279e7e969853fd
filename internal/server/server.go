// ============================================================================
// Workshop Queue 狀態伺服器 - 唯讀的 HTTP 介面
// ============================================================================
//
// Package: internal/server
// 文件: server.go
// 功能: 對外提供控制器目前的階段、製作中項目與佇列，以及 Prometheus 指標
//
// 路由:
//   GET /status   控制器狀態（JSON）
//   GET /healthz  存活檢查
//   GET /metrics  Prometheus 抓取端點
//
// ============================================================================

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ChuLiYu/workshop-queue/internal/controller"
	"github.com/ChuLiYu/workshop-queue/internal/metrics"
)

var log = slog.Default()

const shutdownTimeout = 5 * time.Second

// StatusProvider 提供控制器狀態的來源
type StatusProvider interface {
	Status() controller.Status
}

// Config 伺服器設定
type Config struct {
	Addr  string
	Debug bool // true 時記錄每個請求
}

// Server 狀態伺服器
type Server struct {
	config   Config
	provider StatusProvider
	router   *gin.Engine
	server   *http.Server
}

// NewServer 建立狀態伺服器並註冊路由
func NewServer(cfg Config, provider StatusProvider) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{config: cfg, provider: provider}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/status", s.handleStatus)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	s.router = router
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler 回傳路由（測試使用）
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run 啟動伺服器直到 ctx 結束，然後優雅關閉
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting status server", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			log.Error("Status server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Stopping status server")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.Status())
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if s.config.Debug {
			log.Info("HTTP request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration", time.Since(start))
		}
	}
}
