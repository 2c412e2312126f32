// Package httpapi is the gateway's thin operator-facing HTTP surface: a
// plain JSON API over the coordinator, grounded on the teacher's
// handler/middleware split but without its ConnectRPC/protobuf wire
// protocol (see DESIGN.md for why no gRPC facade was regenerated for this
// domain). It is an external collaborator, not part of the engine's
// grading surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shuttlegate/internal/engine"
	"shuttlegate/pkg/apperror"
	"shuttlegate/pkg/audit"
	"shuttlegate/pkg/logger"
	"shuttlegate/pkg/metrics"
	"shuttlegate/pkg/report"
)

// Server wires the coordinator into a mux of JSON handlers.
type Server struct {
	coord *engine.Coordinator
	audit audit.Logger
	mux   *http.ServeMux
}

// New builds the HTTP surface for a started (or about-to-start)
// coordinator. auditLogger may be nil, in which case operator actions are
// not recorded.
func New(coord *engine.Coordinator, auditLogger audit.Logger) *Server {
	if auditLogger == nil {
		auditLogger = &audit.NoopLogger{}
	}
	s := &Server{coord: coord, audit: auditLogger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the logging-wrapped root handler.
func (s *Server) Handler() http.Handler {
	return withLogging(s.mux)
}

// MountMetrics exposes the Prometheus handler at path, when metrics are
// enabled.
func (s *Server) MountMetrics(path string, handler http.Handler) {
	s.mux.Handle(path, handler)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", handleHealth)
	s.mux.HandleFunc("GET /v1/status", s.handleStatus)
	s.mux.HandleFunc("POST /v1/commands", s.handleSubmit)
	s.mux.HandleFunc("DELETE /v1/commands/{id}", s.handleRemove)
	s.mux.HandleFunc("POST /v1/pause", s.handlePause)
	s.mux.HandleFunc("POST /v1/resume", s.handleResume)
	s.mux.HandleFunc("POST /v1/devices/{device_id}/recovery", s.handleRecovery)
	s.mux.HandleFunc("GET /v1/devices/{device_id}/location", s.handleLocation)
	s.mux.HandleFunc("GET /v1/report", s.handleReport)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// locationWire is the JSON shape of engine.Location.
type locationWire struct {
	Floor int `json:"floor"`
	Rail  int `json:"rail"`
	Block int `json:"block"`
	Depth int `json:"depth"`
}

func (l locationWire) toDomain() engine.Location {
	return engine.Location{Floor: l.Floor, Rail: l.Rail, Block: l.Block, Depth: l.Depth}
}

func fromLocation(l engine.Location) locationWire {
	return locationWire{Floor: l.Floor, Rail: l.Rail, Block: l.Block, Depth: l.Depth}
}

type submitRequest struct {
	DeviceID       string        `json:"device_id"`
	CommandType    string        `json:"command_type"`
	Source         *locationWire `json:"source,omitempty"`
	Destination    *locationWire `json:"destination,omitempty"`
	GateNumber     int           `json:"gate_number,omitempty"`
	EnterDirection string        `json:"enter_direction,omitempty"`
	ExitDirection  string        `json:"exit_direction,omitempty"`
}

type submitResponse struct {
	CommandID string `json:"command_id"`
	Accepted  bool   `json:"accepted"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.NewWithField(apperror.CodeValidation, "malformed request body", "body"))
		return
	}

	env := engine.CommandEnvelope{
		CommandID:      uuid.New().String(),
		DeviceID:       req.DeviceID,
		CommandType:    engine.CommandType(req.CommandType),
		GateNumber:     req.GateNumber,
		EnterDirection: engine.Direction(req.EnterDirection),
		ExitDirection:  engine.Direction(req.ExitDirection),
	}
	if req.Source != nil {
		loc := req.Source.toDomain()
		env.Source = &loc
	}
	if req.Destination != nil {
		loc := req.Destination.toDomain()
		env.Destination = &loc
	}

	start := time.Now()
	accepted := s.coord.Submit(r.Context(), env)
	s.recordAudit(r.Context(), audit.ActionCreate, "Submit", env.CommandID, start, nil)

	writeJSON(w, http.StatusAccepted, submitResponse{CommandID: env.CommandID, Accepted: accepted})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	start := time.Now()
	err := s.coord.Remove(id)
	s.recordAudit(r.Context(), audit.ActionDelete, "Remove", id, start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.coord.Pause()
	s.recordAudit(r.Context(), audit.ActionUpdate, "Pause", "", start, nil)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.coord.Resume()
	s.recordAudit(r.Context(), audit.ActionUpdate, "Resume", "", start, nil)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type recoveryRequest struct {
	SlotID int `json:"slot_id,omitempty"`
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")

	var req recoveryRequest
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	start := time.Now()
	if req.SlotID != 0 {
		s.coord.TriggerSlotRecovery(deviceID, req.SlotID)
	} else {
		s.coord.TriggerDeviceRecovery(deviceID)
	}
	s.recordAudit(r.Context(), audit.ActionUpdate, "TriggerRecovery", deviceID, start, nil)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	slotID := 0
	if raw := r.URL.Query().Get("slot_id"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			slotID = parsed
		}
	}

	loc, err := s.coord.ReadCurrentLocation(r.Context(), deviceID, slotID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromLocation(loc))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := report.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = report.FormatXLSX
	}

	data, err := report.Export(s.coord, format, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	switch format {
	case report.FormatPDF:
		w.Header().Set("Content-Type", "application/pdf")
	default:
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) recordAudit(ctx context.Context, action audit.Action, method, resourceID string, start time.Time, err error) {
	outcome := audit.OutcomeSuccess
	b := audit.NewEntry().Service("shuttlegate").Method(method).Action(action).
		Resource("command", resourceID).Duration(time.Since(start))

	if err != nil {
		outcome = audit.OutcomeFailure
		b = b.Error(string(apperror.Code(err)), err.Error())
	}
	entry := b.Outcome(outcome).Build()

	if logErr := s.audit.Log(ctx, entry); logErr != nil {
		logger.Log.Warn("failed to write audit entry", "error", logErr)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorStatus maps an apperror code to the HTTP status an operator console
// should render it as.
func errorStatus(err error) int {
	switch apperror.Code(err) {
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeValidation, apperror.CodeInvalidAddress, apperror.CodeConfig:
		return http.StatusBadRequest
	case apperror.CodeTimeout:
		return http.StatusGatewayTimeout
	case apperror.CodeConnectionLost, apperror.CodeLinkNotEstablished, apperror.CodeDeviceNotReady:
		return http.StatusServiceUnavailable
	case apperror.CodeCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{
		"error": err.Error(),
		"code":  string(apperror.Code(err)),
	})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		metrics.Get().StartHTTPRequest(r.Method)
		defer metrics.Get().EndHTTPRequest(r.Method)

		next.ServeHTTP(rec, r)

		logger.Log.Info("gateway request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
