// Package httpapi exposes the gateway over REST plus a WebSocket event
// stream per session.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voicestack.local/voicegate/internal/agent"
	"voicestack.local/voicegate/internal/dispatch"
	"voicestack.local/voicegate/internal/events"
	"voicestack.local/voicegate/internal/export"
	"voicestack.local/voicegate/internal/faults"
	"voicestack.local/voicegate/internal/ids"
	"voicestack.local/voicegate/internal/orchestrator"
	"voicestack.local/voicegate/internal/speech"
	"voicestack.local/voicegate/internal/store"
)

const (
	maxJSONRequestBytes  int64 = 1 << 20
	maxAudioRequestBytes int64 = 32 << 20
	maxWSRequestBytes    int64 = 1 << 20
	wsWriteTimeout             = 10 * time.Second
)

// TurnRunner is the orchestration entry point the API depends on.
type TurnRunner interface {
	Run(ctx context.Context, req orchestrator.Request) ([]orchestrator.Result, error)
}

// Deps carries the collaborators the server routes requests to.
// Transcriber and Synthesizer may be nil; the voice endpoints then answer
// 501.
type Deps struct {
	Runner      TurnRunner
	Store       store.Store
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Dispatcher  *dispatch.Dispatcher
}

type server struct {
	logger *log.Logger
	deps   Deps
}

func NewServer(logger *log.Logger, addr string, deps Deps) *http.Server {
	h := &server{logger: logger, deps: deps}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /v1/agents", h.handleAgents)
	mux.HandleFunc("POST /v1/sessions/{id}/turns", h.handleTurns)
	mux.HandleFunc("POST /v1/sessions/{id}/voice-turns", h.handleVoiceTurns)
	mux.HandleFunc("GET /v1/sessions/{id}", h.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.handleClearSession)
	mux.HandleFunc("POST /v1/sessions/{id}/export", h.handleExport)
	mux.HandleFunc("POST /v1/sessions/{id}/readback", h.handleReadback)
	mux.HandleFunc("POST /v1/speech", h.handleSpeech)
	mux.HandleFunc("GET /v1/sessions/{id}/events", h.handleSessionEvents)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	type agentBody struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Description string `json:"description"`
	}
	all := agent.All()
	out := make([]agentBody, 0, len(all))
	for _, a := range all {
		out = append(out, agentBody{ID: string(a.ID), DisplayName: a.DisplayName, Description: a.Description})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": out})
}

type turnRequestBody struct {
	Utterance      string   `json:"utterance"`
	Agents         []string `json:"agents"`
	Chain          *bool    `json:"chain"`
	IncludeHistory *bool    `json:"include_history"`
}

type turnResponseBody struct {
	SessionID  string                `json:"session_id"`
	Transcript string                `json:"transcript,omitempty"`
	Results    []orchestrator.Result `json:"results"`
	ReplyAudio string                `json:"reply_audio,omitempty"`
}

func (s *server) handleTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	defer r.Body.Close()
	var body turnRequestBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if dec.More() {
		http.Error(w, "invalid json: trailing content", http.StatusBadRequest)
		return
	}

	results, err := s.deps.Runner.Run(r.Context(), orchestrator.Request{
		SessionID:      sessionID,
		Utterance:      body.Utterance,
		Agents:         toAgentIDs(body.Agents),
		Chain:          body.Chain,
		IncludeHistory: body.IncludeHistory,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponseBody{SessionID: sessionID, Results: results})
}

func (s *server) handleVoiceTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if s.deps.Transcriber == nil {
		http.Error(w, "transcription not configured", http.StatusNotImplemented)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioRequestBytes)
	if err := r.ParseMultipartForm(maxAudioRequestBytes); err != nil {
		http.Error(w, fmt.Sprintf("invalid multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "read audio failed", http.StatusBadRequest)
		return
	}

	transcript, err := s.deps.Transcriber.Transcribe(r.Context(), audio)
	if err != nil {
		writeFault(w, err)
		return
	}

	var chain *bool
	if raw := strings.TrimSpace(r.FormValue("chain")); raw != "" {
		value := raw == "true" || raw == "1"
		chain = &value
	}

	results, err := s.deps.Runner.Run(r.Context(), orchestrator.Request{
		SessionID: sessionID,
		Utterance: transcript,
		Agents:    toAgentIDs(strings.Split(r.FormValue("agents"), ",")),
		Chain:     chain,
	})
	if err != nil {
		writeFault(w, err)
		return
	}

	resp := turnResponseBody{SessionID: sessionID, Transcript: transcript, Results: results}

	// speak=true asks for the completed responses read back as one WAV.
	if r.FormValue("speak") == "true" && s.deps.Synthesizer != nil {
		var spoken []string
		for _, res := range results {
			if res.Status == store.TurnStatusCompleted {
				spoken = append(spoken, res.Output)
			}
		}
		if len(spoken) > 0 {
			wav, err := s.deps.Synthesizer.Synthesize(r.Context(), strings.Join(spoken, " "))
			if err != nil {
				s.logger.Printf("httpapi voice reply synthesis failed session=%s err=%v", sessionID, err)
			} else {
				resp.ReplyAudio = base64.StdEncoding.EncodeToString(wav)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	session, err := s.deps.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeFault(w, err)
		return
	}
	turns, err := s.deps.Store.ListTurns(r.Context(), sessionID, 0)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session, "turns": turns})
}

func (s *server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if err := s.deps.Store.ClearSession(r.Context(), sessionID); err != nil {
		writeFault(w, err)
		return
	}
	s.publish(r.Context(), events.TypeSessionCleared, sessionID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "session_id": sessionID})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	if _, err := s.deps.Store.GetSession(r.Context(), sessionID); err != nil {
		writeFault(w, err)
		return
	}
	turns, err := s.deps.Store.ListTurns(r.Context(), sessionID, 0)
	if err != nil {
		writeFault(w, err)
		return
	}

	doc := export.Markdown(sessionID, turns)
	s.publish(r.Context(), events.TypeExportCreated, sessionID, map[string]any{"turns": len(turns)})

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "session_"+sessionID+".md"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

type readbackRequestBody struct {
	AgentFilter string `json:"agent_filter"`
}

func (s *server) handleReadback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if s.deps.Synthesizer == nil {
		http.Error(w, "synthesis not configured", http.StatusNotImplemented)
		return
	}

	defer r.Body.Close()
	var body readbackRequestBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONRequestBytes))
	if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := s.deps.Store.GetSession(r.Context(), sessionID); err != nil {
		writeFault(w, err)
		return
	}
	turns, err := s.deps.Store.ListTurns(r.Context(), sessionID, 0)
	if err != nil {
		writeFault(w, err)
		return
	}

	digest := export.SpokenDigest(sessionID, turns, body.AgentFilter)
	wav, err := s.deps.Synthesizer.Synthesize(r.Context(), digest)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeWAV(w, "logs_audio_"+sessionID+".wav", wav)
}

type speechRequestBody struct {
	Text string `json:"text"`
}

func (s *server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if s.deps.Synthesizer == nil {
		http.Error(w, "synthesis not configured", http.StatusNotImplemented)
		return
	}

	defer r.Body.Close()
	var body speechRequestBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	wav, err := s.deps.Synthesizer.Synthesize(r.Context(), body.Text)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeWAV(w, "speech.wav", wav)
}

// sessionWatcher forwards one session's events to a WebSocket connection.
type sessionWatcher struct {
	name      string
	sessionID string

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *sessionWatcher) Name() string { return s.name }

func (s *sessionWatcher) Handle(_ context.Context, event events.Envelope) error {
	if event.SessionID != s.sessionID {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(event)
}

func (s *server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if s.deps.Dispatcher == nil {
		http.Error(w, "events not configured", http.StatusNotImplemented)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: isWebSocketOriginAllowed}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("httpapi session events upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSRequestBytes)

	watcher := &sessionWatcher{
		name:      "ws-" + ids.New(),
		sessionID: sessionID,
		conn:      conn,
	}
	s.deps.Dispatcher.Register(watcher)
	defer s.deps.Dispatcher.Unregister(watcher.name)

	// Drain client frames until the peer goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *server) publish(ctx context.Context, eventType events.Type, sessionID string, payload map[string]any) {
	if s.deps.Dispatcher == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	s.deps.Dispatcher.Dispatch(ctx, events.Envelope{
		EventID:    ids.New(),
		TraceID:    ids.New(),
		OccurredAt: time.Now().UTC(),
		EventType:  eventType,
		SessionID:  sessionID,
		Payload:    raw,
	})
}

func toAgentIDs(raw []string) []agent.ID {
	out := make([]agent.ID, 0, len(raw))
	for _, v := range raw {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, agent.ID(trimmed))
		}
	}
	return out
}

// writeFault maps the shared fault taxonomy onto HTTP statuses.
func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, faults.ErrInvalidRequest), errors.Is(err, faults.ErrUnknownAgent):
		status = http.StatusBadRequest
	case errors.Is(err, faults.ErrUnsupportedAudioFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, faults.ErrGatewayTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, faults.ErrGatewayUnavailable), errors.Is(err, faults.ErrMalformedResponse):
		status = http.StatusBadGateway
	}

	kind := faults.Kind(err)
	if errors.Is(err, store.ErrNotFound) {
		kind = "not_found"
	}
	writeJSON(w, status, map[string]any{"error": err.Error(), "kind": kind})
}

func writeWAV(w http.ResponseWriter, filename string, wav []byte) {
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	parsedOrigin, err := url.Parse(origin)
	if err != nil || strings.TrimSpace(parsedOrigin.Host) == "" {
		return false
	}
	return strings.EqualFold(parsedOrigin.Host, r.Host)
}
