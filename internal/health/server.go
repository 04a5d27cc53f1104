// Package health serves the liveness endpoints used by uptime checks and
// the self-ping keep-alive.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rtsup "fleetbot/internal/runtime/supervisor"
	logx "fleetbot/pkg/logx"
)

const RootText = "Бот работает!"

type Config struct {
	Addr     string
	Location *time.Location
	// Pprof mounts net/http/pprof under /debug.
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SupervisorsFunc lists supervisors to report on /health, keyed by component.
type SupervisorsFunc func() map[string]*rtsup.Supervisor

type Server struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	now  func() time.Time
	sups SupervisorsFunc

	srv      *http.Server
	ln       net.Listener
	sup      *rtsup.Supervisor
	stopDone chan struct{}
	ready    chan struct{}
}

func New(cfg Config, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return &Server{cfg: cfg, log: log, now: time.Now, ready: make(chan struct{})}
}

func (s *Server) SetSupervisors(fn SupervisorsFunc) {
	s.mu.Lock()
	s.sups = fn
	s.mu.Unlock()
}

// Supervisor returns the server's internal supervisor (nil if not started).
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Handler returns the router; it does not require Start.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/time", s.handleTime)
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("dur", time.Since(start)),
			logx.String("req_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(RootText))
}

type taskView struct {
	Active     int    `json:"active"`
	FirstError string `json:"first_error,omitempty"`
}

type healthView struct {
	Status    string              `json:"status"`
	Timestamp string              `json:"timestamp"`
	Tasks     map[string]taskView `json:"tasks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	sups := s.sups
	s.mu.Unlock()

	v := healthView{Status: "ok", Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00")}
	if sups != nil {
		v.Tasks = map[string]taskView{}
		for name, sup := range sups() {
			if sup == nil {
				continue
			}
			snap := sup.Snapshot()
			v.Tasks[name] = taskView{Active: snap.Active, FirstError: snap.FirstError}
		}
	}
	writeJSON(w, http.StatusOK, v)
}

type timeView struct {
	Local    string `json:"local"`
	UTC      string `json:"utc"`
	Server   string `json:"server"`
	Timezone string `json:"timezone"`
	Process  string `json:"process_tz"`
}

func (s *Server) handleTime(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	tz := strings.TrimSpace(os.Getenv("TZ"))
	if tz == "" {
		tz = "system default"
	}
	writeJSON(w, http.StatusOK, timeView{
		Local:    now.In(s.cfg.Location).Format(time.DateTime),
		UTC:      now.UTC().Format(time.DateTime),
		Server:   now.Format(time.RFC3339Nano),
		Timezone: s.cfg.Location.String(),
		Process:  tz,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start runs the listener under a restart loop. It is idempotent.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "health"))),
		// liveness is optional; a broken listener never takes the bot down.
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Ready is closed once the listener is bound for the first time.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound listener address, or "" when not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.sup == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv, sup := s.srv, s.sup
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			_ = srv.Shutdown(ctx)
			_ = srv.Close()
		}
		sup.Cancel()
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.srv, s.ln, s.sup, s.stopDone = nil, nil, nil, nil
		s.mu.Unlock()
		s.log.Info("http server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
	}
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.ln, s.srv = ln, srv
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.srv, s.ln = nil, nil
	}
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if stopping || ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
