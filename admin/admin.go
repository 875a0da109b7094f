// Package admin serves the operational HTTP surface of a bridge host.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/bridge"
	"github.com/crazyfrankie/grpcbus/metrics"
)

// SessionLister reports the connections served by a host.
type SessionLister interface {
	Sessions() []bridge.Session
}

// AliasLister reports the endpoint aliases in effect.
type AliasLister interface {
	Aliases() map[string]string
}

type adminOption struct {
	gatherer prometheus.Gatherer
	sessions SessionLister
	latency  *metrics.Latency
	aliases  AliasLister
}

type Option func(*adminOption)

// WithGatherer serves g on /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(opt *adminOption) {
		opt.gatherer = g
	}
}

// WithSessions serves l on /debug/connections.
func WithSessions(l SessionLister) Option {
	return func(opt *adminOption) {
		opt.sessions = l
	}
}

// WithLatency serves l on /debug/latency.
func WithLatency(l *metrics.Latency) Option {
	return func(opt *adminOption) {
		opt.latency = l
	}
}

// WithAliases serves l on /debug/aliases.
func WithAliases(l AliasLister) Option {
	return func(opt *adminOption) {
		opt.aliases = l
	}
}

// NewHandler returns the admin routes.
func NewHandler(opts ...Option) http.Handler {
	opt := &adminOption{gatherer: prometheus.DefaultGatherer}
	for _, o := range opts {
		o(opt)
	}

	r := gin.New()
	r.Use(logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opt.gatherer, promhttp.HandlerOpts{})))

	debug := r.Group("/debug")
	debug.GET("/connections", func(c *gin.Context) {
		if opt.sessions == nil {
			c.JSON(http.StatusOK, []bridge.Session{})
			return
		}
		c.JSON(http.StatusOK, opt.sessions.Sessions())
	})
	debug.GET("/latency", func(c *gin.Context) {
		if opt.latency == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "latency is not collected"})
			return
		}
		c.JSON(http.StatusOK, opt.latency.Summary())
	})
	debug.GET("/aliases", func(c *gin.Context) {
		if opt.aliases == nil {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		c.JSON(http.StatusOK, opt.aliases.Aliases())
	})

	return r
}

func logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Debug("admin request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
