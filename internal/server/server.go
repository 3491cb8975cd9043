package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/config"
	"github.com/USA-RedDragon/logcapture-server/internal/ingest"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Server struct {
	ipv4Server        *http.Server
	ipv6Server        *http.Server
	metricsIPV4Server *http.Server
	metricsIPV6Server *http.Server
	stopped           atomic.Bool
	config            *config.Config
}

const (
	defTimeout = 120 * time.Second
	// Large archives take a while to arrive and be processed.
	uploadTimeout   = 15 * time.Minute
	shutdownTimeout = 240 * time.Second
)

// Router cleans trailing slashes before routing.
type Router struct {
	*gin.Engine
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasSuffix(req.URL.Path, "/") {
		req.URL.Path = filepath.Clean(req.URL.Path)
	}
	r.Engine.ServeHTTP(w, req)
}

// NewRouter builds the API handler without binding any listener.
func NewRouter(config *config.Config, db *gorm.DB, pipeline *ingest.Pipeline) *Router {
	gin.SetMode(gin.ReleaseMode)
	if config.HTTP.PProf.Enabled {
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	if config.HTTP.PProf.Enabled {
		pprof.Register(r)
	}

	applyMiddleware(r, config, "api", db, pipeline)
	applyRoutes(r)

	return &Router{Engine: r}
}

func NewServer(config *config.Config, db *gorm.DB, pipeline *ingest.Pipeline) *Server {
	router := NewRouter(config, db, pipeline)

	server := &Server{
		ipv4Server: newHTTPServer(fmt.Sprintf("%s:%d", config.HTTP.IPV4Host, config.HTTP.Port), router, uploadTimeout),
		ipv6Server: newHTTPServer(fmt.Sprintf("[%s]:%d", config.HTTP.IPV6Host, config.HTTP.Port), router, uploadTimeout),
		config:     config,
	}

	if config.HTTP.Metrics.Enabled {
		metricsRouter := gin.New()
		applyMiddleware(metricsRouter, config, "metrics", db, pipeline)
		metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

		server.metricsIPV4Server = newHTTPServer(fmt.Sprintf("%s:%d", config.HTTP.Metrics.IPV4Host, config.HTTP.Metrics.Port), metricsRouter, defTimeout)
		server.metricsIPV6Server = newHTTPServer(fmt.Sprintf("[%s]:%d", config.HTTP.Metrics.IPV6Host, config.HTTP.Metrics.Port), metricsRouter, defTimeout)
	}

	return server
}

func newHTTPServer(addr string, handler http.Handler, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: defTimeout,
		WriteTimeout:      writeTimeout,
		Handler:           handler,
	}
}

// Start binds every configured listener and serves in the background. It
// returns once all listeners are bound. If any listener fails to bind, the
// ones already serving are shut down before the error is returned.
func (s *Server) Start() error {
	type listener struct {
		network string
		srv     *http.Server
		name    string
	}
	listeners := []listener{
		{"tcp4", s.ipv4Server, "HTTP IPv4"},
		{"tcp6", s.ipv6Server, "HTTP IPv6"},
	}
	if s.config.HTTP.Metrics.Enabled {
		listeners = append(listeners,
			listener{"tcp4", s.metricsIPV4Server, "Metrics IPv4"},
			listener{"tcp6", s.metricsIPV6Server, "Metrics IPv6"},
		)
	}

	started := make([]*http.Server, 0, len(listeners))
	bound := make([]net.Listener, 0, len(listeners))
	for _, l := range listeners {
		if l.srv == nil {
			continue
		}
		ln, err := s.serve(l.network, l.srv, l.name)
		if err != nil {
			s.stopped.Store(true)
			for _, ln := range bound {
				_ = ln.Close()
			}
			if shutdownErr := s.shutdown(started); shutdownErr != nil {
				slog.Error("Failed to stop listeners after bind error", "error", shutdownErr.Error())
			}
			return err
		}
		started = append(started, l.srv)
		bound = append(bound, ln)
	}

	slog.Info("HTTP server started", "ipv4", s.config.HTTP.IPV4Host, "ipv6", s.config.HTTP.IPV6Host, "port", s.config.HTTP.Port)
	if s.config.HTTP.Metrics.Enabled {
		slog.Info("Metrics server started", "ipv4", s.config.HTTP.Metrics.IPV4Host, "ipv6", s.config.HTTP.Metrics.IPV6Host, "port", s.config.HTTP.Metrics.Port)
	}
	return nil
}

func (s *Server) serve(network string, srv *http.Server, name string) (net.Listener, error) {
	listener, err := net.Listen(network, srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	go func() {
		if err := srv.Serve(listener); err != nil && !s.stopped.Load() {
			slog.Error(name+" server error", "error", err.Error())
		}
	}()
	return listener, nil
}

func (s *Server) Stop() error {
	return s.shutdown([]*http.Server{s.ipv4Server, s.ipv6Server, s.metricsIPV4Server, s.metricsIPV6Server})
}

func (s *Server) shutdown(servers []*http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.stopped.Store(true)

	errGrp := errgroup.Group{}
	for _, srv := range servers {
		if srv == nil {
			continue
		}
		errGrp.Go(func() error {
			return srv.Shutdown(ctx)
		})
	}

	return errGrp.Wait()
}
