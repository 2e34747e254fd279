package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/casta-dev/casta/pkg/session"
)

// publishResult is the response to PUT /api/state.
type publishResult struct {
	Delivered int    `json:"delivered"`
	Version   uint64 `json:"version"`
}

// sessionInfo is the JSON view of a session.
type sessionInfo struct {
	ID         uint32    `json:"id"`
	RemoteAddr string    `json:"remoteAddr"`
	CreatedAt  time.Time `json:"createdAt"`
	LastAlive  time.Time `json:"lastAlive"`
	FramesIn   uint64    `json:"framesIn"`
	FramesOut  uint64    `json:"framesOut"`
	ProbesSent uint64    `json:"probesSent"`
	Queued     int       `json:"queued"`
}

func newSessionInfo(s *session.Session) sessionInfo {
	st := s.Stats()
	return sessionInfo{
		ID:         st.ID,
		RemoteAddr: s.RemoteAddr(),
		CreatedAt:  st.CreatedAt,
		LastAlive:  st.LastAlive,
		FramesIn:   st.FramesIn,
		FramesOut:  st.FramesOut,
		ProbesSent: st.ProbesSent,
		Queued:     st.Queued,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Snapshot()
	if !snap.Present {
		writeError(w, http.StatusNotFound, ErrNoState)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-State-Version", strconv.FormatUint(snap.Version, 10))
	w.Header().Set("Last-Modified", snap.UpdatedAt.UTC().Format(http.TimeFormat))
	_, _ = w.Write(snap.Value)
}

// handlePutState stores the body as the shared state and broadcasts it to
// every open session. A viewer connecting while this runs may receive the
// new state twice (once from its replay) but never misses it.
func (s *Server) handlePutState(w http.ResponseWriter, r *http.Request) {
	payload, status, err := s.readPayload(w, r)
	if err != nil {
		writeError(w, status, err)
		return
	}

	s.state.Store(payload)
	n, err := s.manager.BroadcastContext(r.Context(), payload)
	if err != nil {
		s.logger.Error("broadcast failed", "error", err, "delivered", n)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Debug("state published", "bytes", len(payload), "delivered", n)
	writeJSON(w, http.StatusOK, publishResult{Delivered: n, Version: s.state.Version()})
}

func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	s.state.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := make([]sessionInfo, 0, s.manager.Count())
	for _, id := range s.manager.IDs() {
		if sess := s.manager.Get(id); sess != nil {
			infos = append(infos, newSessionInfo(sess))
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, status, err := s.lookup(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionInfo(sess))
}

// handleSendSession delivers the body to one session. The write happens
// asynchronously, so success means accepted rather than written.
func (s *Server) handleSendSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payload, status, err := s.readPayload(w, r)
	if err != nil {
		writeError(w, status, err)
		return
	}

	if err := s.manager.SendContext(r.Context(), id, payload); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, status, err := s.lookup(r)
	if err != nil {
		writeError(w, status, err)
		return
	}
	s.manager.Close(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Metrics())
}

// readPayload reads a JSON request body bounded by the transport's message
// size. On failure it returns the HTTP status to reply with.
func (s *Server) readPayload(w http.ResponseWriter, r *http.Request) (json.RawMessage, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.Transport.MaxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, ErrPayloadTooLarge
		}
		return nil, http.StatusBadRequest, err
	}
	if !json.Valid(body) {
		return nil, http.StatusBadRequest, ErrInvalidPayload
	}
	return json.RawMessage(body), 0, nil
}

func (s *Server) lookup(r *http.Request) (*session.Session, int, error) {
	id, err := sessionID(r)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	sess := s.manager.Get(id)
	if sess == nil {
		return nil, http.StatusNotFound, session.NewSessionError(id, "lookup", session.ErrSessionNotFound)
	}
	return sess, 0, nil
}

func sessionID(r *http.Request) (uint32, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		return 0, ErrInvalidSessionID
	}
	return uint32(id), nil
}
