// Package panel serves the browser control panel and its JSON API.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/timzifer/mistpanel/controller"
	"github.com/timzifer/mistpanel/render"
)

// Controller is the part of the device controller the panel drives.
type Controller interface {
	Snapshot() controller.Snapshot
	TogglePower(ctx context.Context) (controller.Snapshot, error)
	ToggleAtomizer(ctx context.Context) (controller.Snapshot, error)
	PreviewFan(percent int) controller.Snapshot
	SetFanPercent(ctx context.Context, percent int) (controller.Snapshot, error)
}

// Server is a running panel listener.
type Server struct {
	logger   zerolog.Logger
	ctrl     Controller
	gatherer prometheus.Gatherer
	title    string
	server   *http.Server
	ln       net.Listener
}

// maxRequestBytes bounds action request bodies.
const maxRequestBytes = 1 << 10

type fanRequest struct {
	Percent *int `json:"percent"`
}

type pageData struct {
	Title string
	View  render.View
}

// Option tweaks the panel.
type Option func(*Server)

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithTitle sets the page heading.
func WithTitle(title string) Option {
	return func(s *Server) {
		if title != "" {
			s.title = title
		}
	}
}

// NewHandler builds the panel routes without binding a listener.
func NewHandler(ctrl Controller, logger zerolog.Logger, opts ...Option) http.Handler {
	return newServer(ctrl, logger, opts...).routes()
}

// Start listens on addr and serves the panel in the background.
func Start(listen string, ctrl Controller, logger zerolog.Logger, opts ...Option) (*Server, error) {
	server := newServer(ctrl, logger, opts...)
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: server.routes(), ReadHeaderTimeout: 5 * time.Second}
	server.server = srv
	server.ln = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("panel server stopped")
		}
	}()

	logger.Info().Str("listen", ln.Addr().String()).Msg("panel started")
	return server, nil
}

func newServer(ctrl Controller, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{logger: logger, ctrl: ctrl, title: "Mist control panel"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/power", s.handlePower)
	mux.HandleFunc("/api/atomizer", s.handleAtomizer)
	mux.HandleFunc("/api/fan", s.handleFan)
	mux.HandleFunc("/api/fan/preview", s.handleFanPreview)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	if s == nil || s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Close() {
	if s == nil || s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error().Err(err).Msg("shutdown panel")
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := pageData{Title: s.title, View: render.Render(s.ctrl.Snapshot())}
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error().Err(err).Msg("render panel page")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeView(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.ctrl.TogglePower(r.Context())
	s.writeView(w, statusFor(err), snap)
}

func (s *Server) handleAtomizer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := s.ctrl.ToggleAtomizer(r.Context())
	s.writeView(w, statusFor(err), snap)
}

func (s *Server) handleFan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	percent, ok := decodeFan(w, r)
	if !ok {
		return
	}
	snap, err := s.ctrl.SetFanPercent(r.Context(), percent)
	s.writeView(w, statusFor(err), snap)
}

func (s *Server) handleFanPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	percent, ok := decodeFan(w, r)
	if !ok {
		return
	}
	s.writeView(w, http.StatusOK, s.ctrl.PreviewFan(percent))
}

func decodeFan(w http.ResponseWriter, r *http.Request) (int, bool) {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer body.Close()
	var req fanRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return 0, false
	}
	if req.Percent == nil {
		http.Error(w, "percent required", http.StatusBadRequest)
		return 0, false
	}
	return *req.Percent, true
}

// statusFor maps a controller outcome onto an HTTP status. The body always
// carries the view so the page can redraw the status line.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, controller.ErrSystemOff):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeView(w http.ResponseWriter, status int, snap controller.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(render.Render(snap)); err != nil {
		s.logger.Error().Err(err).Msg("encode panel view")
	}
}
