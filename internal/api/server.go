package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"homeguard/internal/config"
	"homeguard/internal/domain"
	"homeguard/internal/status"

	"github.com/gorilla/websocket"
)

// Controller is the command and query surface served over HTTP.
type Controller interface {
	Snapshot() status.Snapshot
	Notifications(kind domain.NotificationType) []domain.NotificationRecord
	ToggleAlarm() bool
	AcknowledgeHazard(room string) error
	ConfirmPerson(recordID, name string) error
	SetMode(value string) error
	PlayAudioMessage(kind string) error
}

// Snapshot is the full dashboard view sent on connect and by GET /api/state.
type Snapshot struct {
	State         status.Snapshot             `json:"state"`
	Notifications []domain.NotificationRecord `json:"notifications"`
}

// Server exposes dashboard HTTP and WebSocket endpoints.
// Params: api config, cameras, controller, hub, readiness check and logger.
// Returns: http.Handler via Handler.
type Server struct {
	cfg      config.APIConfig
	cameras  []config.CameraConfig
	ctrl     Controller
	hub      *Hub
	ready    func() bool
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates API server.
// Params: api config, camera list, controller, hub, readiness check and logger.
// Returns: server ready for Handler.
func NewServer(cfg config.APIConfig, cameras []config.CameraConfig, ctrl Controller, hub *Hub, ready func() bool, logger *slog.Logger) *Server {
	if cameras == nil {
		cameras = []config.CameraConfig{}
	}
	server := &Server{
		cfg:     cfg,
		cameras: cameras,
		ctrl:    ctrl,
		hub:     hub,
		ready:   ready,
		logger:  logger.With("component", "api"),
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      server.checkOrigin,
	}
	return server
}

// checkOrigin admits same-origin upgrades, requests without Origin and api.allowed_origins.
// "*" in the list admits every origin.
func (s *Server) checkOrigin(request *http.Request) bool {
	origin := request.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	parsed, err := url.Parse(origin)
	if err == nil && strings.EqualFold(parsed.Host, request.Host) {
		return true
	}
	s.logger.Warn("websocket origin rejected", "origin", origin, "remote", request.RemoteAddr)
	return false
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.cfg.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc("GET "+s.cfg.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if s.ready != nil && !s.ready() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.HandleFunc("GET "+s.cfg.WSPath, s.handleWebSocket)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/cameras", s.handleCameras)
	mux.HandleFunc("POST /api/alarm/toggle", s.handleToggleAlarm)
	mux.HandleFunc("POST /api/hazards/{room}/acknowledge", s.handleAcknowledge)
	mux.HandleFunc("POST /api/people", s.handleConfirmPerson)
	mux.HandleFunc("PUT /api/mode", s.handleSetMode)
	mux.HandleFunc("POST /api/audio", s.handlePlayAudio)
	return mux
}

// Snapshot returns full dashboard view.
func (s *Server) Snapshot() Snapshot {
	return Snapshot{State: s.ctrl.Snapshot(), Notifications: s.ctrl.Notifications("")}
}

func (s *Server) handleWebSocket(writer http.ResponseWriter, request *http.Request) {
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", request.RemoteAddr, "error", err.Error())
		return
	}
	attached := s.hub.attach(conn, func() Message {
		return Message{Type: MessageTypeSnapshot, Data: s.Snapshot()}
	})
	if !attached {
		_ = conn.Close()
	}
}

func (s *Server) handleState(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, s.Snapshot())
}

func (s *Server) handleNotifications(writer http.ResponseWriter, request *http.Request) {
	kind := domain.NotificationType(strings.TrimSpace(request.URL.Query().Get("type")))
	if kind != "" && !kind.IsValid() {
		writeError(writer, http.StatusBadRequest, "unknown notification type")
		return
	}
	writeJSON(writer, http.StatusOK, s.ctrl.Notifications(kind))
}

func (s *Server) handleCameras(writer http.ResponseWriter, _ *http.Request) {
	writeJSON(writer, http.StatusOK, s.cameras)
}

func (s *Server) handleToggleAlarm(writer http.ResponseWriter, _ *http.Request) {
	active := s.ctrl.ToggleAlarm()
	writeJSON(writer, http.StatusOK, map[string]bool{"alarm_active": active})
}

func (s *Server) handleAcknowledge(writer http.ResponseWriter, request *http.Request) {
	s.writeCommandResult(writer, s.ctrl.AcknowledgeHazard(request.PathValue("room")))
}

type confirmPersonRequest struct {
	NotificationID string `json:"notification_id"`
	Name           string `json:"name"`
}

func (s *Server) handleConfirmPerson(writer http.ResponseWriter, request *http.Request) {
	var body confirmPersonRequest
	if !s.decodeBody(writer, request, &body) {
		return
	}
	s.writeCommandResult(writer, s.ctrl.ConfirmPerson(body.NotificationID, body.Name))
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(writer http.ResponseWriter, request *http.Request) {
	var body setModeRequest
	if !s.decodeBody(writer, request, &body) {
		return
	}
	s.writeCommandResult(writer, s.ctrl.SetMode(body.Mode))
}

type playAudioRequest struct {
	Message string `json:"message"`
}

func (s *Server) handlePlayAudio(writer http.ResponseWriter, request *http.Request) {
	var body playAudioRequest
	if !s.decodeBody(writer, request, &body) {
		return
	}
	s.writeCommandResult(writer, s.ctrl.PlayAudioMessage(body.Message))
}

// decodeBody reads one JSON object bounded by MaxBodyBytes.
// Params: response writer, request and destination.
// Returns: false after writing 400/413 response.
func (s *Server) decodeBody(writer http.ResponseWriter, request *http.Request, dst any) bool {
	request.Body = http.MaxBytesReader(writer, request.Body, s.cfg.MaxBodyBytes)
	defer request.Body.Close()
	raw, err := io.ReadAll(request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(writer, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(writer, http.StatusBadRequest, "cannot read request body")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(writer, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeCommandResult maps command errors to HTTP status codes.
func (s *Server) writeCommandResult(writer http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(writer, http.StatusOK, map[string]any{"ok": true, "state": s.ctrl.Snapshot()})
		return
	}
	writeError(writer, commandStatus(err), err.Error())
}

func commandStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrChannelDisconnected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(writer http.ResponseWriter, code int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)
	_ = json.NewEncoder(writer).Encode(body)
}

func writeError(writer http.ResponseWriter, code int, message string) {
	writeJSON(writer, code, map[string]string{"error": message})
}
