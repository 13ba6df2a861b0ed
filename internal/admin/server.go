package admin

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/stats"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
)

const shutdownTimeout = 5 * time.Second

// StatsSource 提供会话统计快照。
type StatsSource interface {
	Rows() []stats.Row
}

// Server 为运维用的 HTTP 服务：健康检查、Prometheus 指标与会话列表。
type Server struct {
	log.Binder

	addr   string
	engine *gin.Engine
}

// NewServer 创建运维服务。gatherer 为 nil 时使用 prometheus.DefaultGatherer。
func NewServer(addr string, source StatsSource, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{addr: addr}
	s.BindComponent("admin")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"sessions": len(source.Rows()),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, source.Rows())
	})
	r.GET("/sessions.csv", func(c *gin.Context) {
		c.Header("Content-Disposition", "attachment; filename="+stats.Filename)
		c.Data(http.StatusOK, "text/csv", stats.Format(source.Rows()))
	})

	s.engine = r
	return s
}

// Handler 返回 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve 在 addr 上提供服务，ctx 取消后优雅退出并返回 nil。
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "admin: listen on %s", s.addr)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener 在已有的 listener 上提供服务。
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger().Info("admin server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "admin: serve")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "admin: shutdown")
		}
		return nil
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger().Debug("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
