package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EldarSaltoun/BLE-Security-System/internal/aggregator"
	"github.com/EldarSaltoun/BLE-Security-System/internal/httputil"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
	"github.com/EldarSaltoun/BLE-Security-System/internal/normalize"
	"github.com/EldarSaltoun/BLE-Security-System/internal/queue"
	"github.com/EldarSaltoun/BLE-Security-System/internal/stations"
)

const (
	colorReset     = "\033[0m"
	colorCyan      = "\033[36m"
	colorYellow    = "\033[33m"
	colorBoldRed   = "\033[1;31m"
	colorBoldGreen = "\033[1;32m"
)

// DefaultStreamCapacity is the queue capacity of each live stream client.
const DefaultStreamCapacity = 256

// Server exposes ingestion, the live views and the control endpoints over HTTP
type Server struct {
	ingest    *queue.Queue[models.RawBatch]
	hub       *queue.Hub[models.CanonicalEvent]
	tracker   *aggregator.PresenceTracker
	session   *aggregator.SessionRecorder
	registry  *stations.Registry
	commander *stations.Commander
	sampler   *aggregator.CalibrationSampler

	// StatsFunc reports pipeline counters for /api/stats, may be nil
	StatsFunc func() map[string]any

	// StreamCapacity bounds each SSE client's queue
	StreamCapacity int
}

// Deps groups the components the server reads from and drives
type Deps struct {
	Ingest    *queue.Queue[models.RawBatch]
	Hub       *queue.Hub[models.CanonicalEvent]
	Tracker   *aggregator.PresenceTracker
	Session   *aggregator.SessionRecorder
	Registry  *stations.Registry
	Commander *stations.Commander
	Sampler   *aggregator.CalibrationSampler
}

func NewServer(d Deps) *Server {
	return &Server{
		ingest:         d.Ingest,
		hub:            d.Hub,
		tracker:        d.Tracker,
		session:        d.Session,
		registry:       d.Registry,
		commander:      d.Commander,
		sampler:        d.Sampler,
		StreamCapacity: DefaultStreamCapacity,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration.
// Station ingest posts are frequent, so only failed ones are logged.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		if r.URL.Path == "/api/ble/ingest" && lrw.statusCode < 300 {
			return
		}
		log.Printf(
			"HTTP: [%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/ble/ingest", s.handleIngest)
	mux.HandleFunc("/api/ble/stream", s.handleStream)
	mux.HandleFunc("/api/ble/devices", s.handleDevices)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/control/scanners", s.handleScanners)
	mux.HandleFunc("/api/control/send", s.handleSend)
	mux.HandleFunc("/api/calibrate/start", s.handleCalibrateStart)
	mux.HandleFunc("/api/calibrate/abort", s.handleCalibrateAbort)
	mux.HandleFunc("/api/calibrate/status", s.handleCalibrateStatus)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// handleIngest accepts a batch or a single event and returns as soon as the
// raw batch is queued. Normalization happens on the ingest service.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	batch, err := normalize.DecodeBatch(body, normalize.UnknownScanner)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if batch.RemoteAddr == "" {
		batch.RemoteAddr = remoteHost(r.RemoteAddr)
	}
	batch.Source = "http"

	accepted := s.ingest.Enqueue(batch)
	httputil.WriteJSONOK(w, map[string]any{"ok": true, "accepted": accepted})
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// handleStream sends one canonical event per SSE data record. Each client
// holds its own hub subscription, so a slow browser only loses its own
// events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, events := s.hub.Subscribe("sse:"+remoteHost(r.RemoteAddr), s.StreamCapacity)
	defer s.hub.Unsubscribe(id)

	// Send initial ping to establish connection
	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		ev, err := events.Dequeue(ctx)
		if err != nil {
			return
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("HTTP: failed to encode stream event: %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	devices := s.tracker.Snapshot()
	httputil.WriteJSONOK(w, map[string]any{
		"present": len(devices),
		"devices": devices,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.session.Summary(nil))
}

func (s *Server) handleScanners(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.registry.Active(0))
}

type sendRequest struct {
	Target string `json:"target"`
	State  *int   `json:"state,omitempty"`
	Mode   *int   `json:"mode,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req sendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	req.Target = strings.TrimSpace(req.Target)
	if req.Target == "" {
		httputil.BadRequest(w, "target is required")
		return
	}

	results, err := s.commander.Send(r.Context(), req.Target, models.StationCommand{State: req.State, Mode: req.Mode})
	switch {
	case errors.Is(err, stations.ErrInvalidCommand):
		httputil.BadRequest(w, err.Error())
		return
	case errors.Is(err, stations.ErrUnknownStation):
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	httputil.WriteJSONOK(w, map[string]any{"ok": true, "results": results})
}

type calibrateRequest struct {
	Coords    *models.Coords `json:"coords"`
	TargetMAC string         `json:"target_mac"`
	TargetMac string         `json:"targetMac"` // Control clients send camelCase
}

// target returns the explicit lock target, empty for name-lock mode.
func (req calibrateRequest) target() string {
	if t := strings.TrimSpace(req.TargetMAC); t != "" {
		return t
	}
	return strings.TrimSpace(req.TargetMac)
}

func (s *Server) handleCalibrateStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req calibrateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Coords == nil {
		httputil.BadRequest(w, "coords are required")
		return
	}

	s.sampler.Start(*req.Coords, req.target())
	httputil.WriteJSONOK(w, map[string]any{"ok": true, "status": s.sampler.Status()})
}

func (s *Server) handleCalibrateAbort(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if err := s.sampler.Abort(); err != nil {
		if errors.Is(err, aggregator.ErrCalibrationInactive) {
			httputil.Conflict(w, err.Error())
			return
		}
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"ok": true})
}

func (s *Server) handleCalibrateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.sampler.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	out := map[string]any{
		"ingest_queue": s.ingest.Stats(),
		"subscribers":  s.hub.Stats(),
		"present":      s.tracker.Count(),
		"stations":     s.registry.Len(),
	}
	if s.StatsFunc != nil {
		for k, v := range s.StatsFunc() {
			out[k] = v
		}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{"ok": true})
}
