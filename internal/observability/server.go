// Package observability serves the operational HTTP endpoints: Prometheus
// metrics, a health probe and optionally net/http/pprof.
package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"raspisanie/internal/runtime/supervisor"
	"raspisanie/pkg/logx"
)

const defaultAddr = "127.0.0.1:9464"

// Config of the HTTP listener. A non-loopback Addr requires Token unless
// AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HealthFunc reports nil when the service is healthy.
type HealthFunc func() error

type Server struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	metrics http.Handler
	health  HealthFunc

	sup  *supervisor.Supervisor
	addr string
}

func New(cfg Config, metrics http.Handler, health HealthFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, metrics: metrics, health: health, log: log.With(logx.String("comp", "http"))}
}

// Addr is the bound address while the server runs.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg, restarting the listener when anything changed.
func (s *Server) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	running := s.sup != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		s.Stop(ctx)
	case !running:
		s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		s.Start(ctx)
	}
}

func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = supervisor.NewSupervisor(context.WithoutCancel(ctx), supervisor.WithLogger(s.log))
	s.sup.GoRestart("http.serve", s.serveOnce,
		supervisor.WithPublishFirstError(true),
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("http server stop", logx.Err(err))
	}
	s.log.Info("http server stopped")
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cur := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cur.Token == "" && !isLoopbackAddr(addr) {
		if !cur.AllowInsecure {
			s.log.Error("refusing non-loopback bind without token", logx.String("addr", addr))
			return errors.New("insecure bind")
		}
		s.log.Warn("serving without token on non-loopback addr", logx.String("addr", addr))
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.routes(cur),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.addr = ""
		s.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", cur.Pprof), logx.Bool("token_set", cur.Token != ""))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

func (s *Server) routes(cur Config) http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.Handler) http.Handler { return withAuth(cur.Token, h) }

	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.health != nil {
			if err := s.health(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	}))
	if s.metrics != nil {
		mux.Handle("/metrics", auth(s.metrics))
	}
	if cur.Pprof {
		mux.Handle("/debug/pprof/", auth(http.HandlerFunc(hpprof.Index)))
		mux.Handle("/debug/pprof/cmdline", auth(http.HandlerFunc(hpprof.Cmdline)))
		mux.Handle("/debug/pprof/profile", auth(http.HandlerFunc(hpprof.Profile)))
		mux.Handle("/debug/pprof/symbol", auth(http.HandlerFunc(hpprof.Symbol)))
		mux.Handle("/debug/pprof/trace", auth(http.HandlerFunc(hpprof.Trace)))
	}
	return mux
}

// withAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
func withAuth(token string, h http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if strings.TrimSpace(got) != tok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil || h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
