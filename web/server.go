// Package web serves the local control page of the daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mklimuk/spectral"
	"github.com/mklimuk/spectral/acquisition"
)

// LED is the indicator the page controls. Toggle must invert the state
// atomically.
type LED interface {
	spectral.Indicator
	Toggle() (bool, error)
}

type StatsSource interface {
	Stats() acquisition.Stats
}

type LinesSource interface {
	Lines() []string
}

type Status struct {
	LED         bool               `json:"led"`
	Acquisition *acquisition.Stats `json:"acquisition,omitempty"`
	Display     []string           `json:"display,omitempty"`
}

type Opts struct {
	Stats           StatsSource
	Display         LinesSource
	Logger          *slog.Logger
	ShutdownTimeout time.Duration
}

type Opt func(*Opts)

func WithStats(s StatsSource) Opt {
	return func(o *Opts) { o.Stats = s }
}

func WithDisplay(d LinesSource) Opt {
	return func(o *Opts) { o.Display = d }
}

func WithLogger(l *slog.Logger) Opt {
	return func(o *Opts) { o.Logger = l }
}

type Server struct {
	led    LED
	config Opts
	router *mux.Router
	log    *slog.Logger
}

func New(led LED, opts ...Opt) *Server {
	config := Opts{ShutdownTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		led:    led,
		config: config,
		router: mux.NewRouter(),
		log:    config.Logger.With("component", "web"),
	}
	s.LoadAPI(s.router)
	return s
}

// LoadAPI registers the page and API endpoints on r.
func (s *Server) LoadAPI(r *mux.Router) {
	r.HandleFunc("/", s.index).Methods("GET")
	r.HandleFunc("/led_toggle", s.toggle).Methods("GET")
	sr := r.PathPrefix("/api").Subrouter()
	sr.HandleFunc("/status", s.status).Methods("GET")
	sr.HandleFunc("/led", s.getLED).Methods("GET")
	sr.HandleFunc("/led", s.putLED).Methods("PUT")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: could not listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()
	s.log.Info("web server started", "addr", ln.Addr().String())
	select {
	case err := <-errs:
		return fmt.Errorf("web: server stopped: %w", err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web: server stopped: %w", err)
	}
	s.log.Info("web server stopped")
	return nil
}

var page = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>spectral</title>
<style>
body { font-family: Arial, sans-serif; text-align: center; padding: 20px; }
.container { max-width: 350px; margin: auto; padding: 20px; border-radius: 10px; box-shadow: 0 0 10px rgba(0, 0, 0, 0.1); }
button { background: #28a745; color: white; padding: 10px; border: none; border-radius: 5px; cursor: pointer; }
pre { text-align: left; background: #111; color: #0f0; padding: 10px; }
</style>
</head>
<body>
<div class="container">
<h3>LED control</h3>
<button id="ledToggleButton" onclick="toggleLED()">{{if .LED}}Switch LED off{{else}}Switch LED on{{end}}</button>
{{if .Display}}<pre>{{range .Display}}{{.}}
{{end}}</pre>{{end}}
</div>
<script>
function toggleLED() {
  fetch('/led_toggle')
    .then(response => response.text())
    .then(data => {
      var button = document.getElementById('ledToggleButton');
      button.innerHTML = data === 'LED ON' ? 'Switch LED off' : 'Switch LED on';
    });
}
</script>
</body>
</html>
`))

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, s.snapshot()); err != nil {
		s.log.Warn("could not render page", "error", err)
	}
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	on, err := s.led.Toggle()
	if err != nil {
		s.log.Warn("could not toggle led", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("led toggled", "on", on)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprint(w, ledText(on))
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.snapshot())
}

func (s *Server) getLED(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"state": s.led.On()})
}

func (s *Server) putLED(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State *bool `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.State == nil {
		http.Error(w, "missing state", http.StatusBadRequest)
		return
	}
	if err := s.led.Set(*req.State); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snapshot() Status {
	st := Status{LED: s.led.On()}
	if s.config.Stats != nil {
		stats := s.config.Stats.Stats()
		st.Acquisition = &stats
	}
	if s.config.Display != nil {
		st.Display = s.config.Display.Lines()
	}
	return st
}

func ledText(on bool) string {
	if on {
		return "LED ON"
	}
	return "LED OFF"
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
