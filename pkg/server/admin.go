package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"wsrooms/pkg/logging"
	"wsrooms/pkg/protocol"
	"wsrooms/pkg/registry"
	"wsrooms/pkg/router"
)

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Connections registry.Stats `json:"connections"`
	Rooms       int            `json:"rooms"`
}

// ConnectionsResponse is returned by GET /connections.
type ConnectionsResponse struct {
	IDs   []uint64 `json:"ids"`
	Count int      `json:"count"`
}

// AdminHandler returns the read-only admin API:
//
//	GET /healthz
//	GET /stats
//	GET /rooms
//	GET /rooms/{id}
//	GET /connections
func (s *Server) AdminHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	r.HandleFunc("/rooms/{id:[0-9]+}", s.handleRoom).Methods(http.MethodGet)
	r.HandleFunc("/connections", s.handleConnections).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.stopping() {
		status = "stopping"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatsResponse{
		Connections: s.conns.Stats(),
		Rooms:       s.rooms.Len(),
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.rooms.List()
	out := make([]protocol.RoomInfo, 0, len(rooms))
	for _, rm := range rooms {
		out = append(out, router.RoomInfo(rm))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
		return
	}

	rm, ok := s.rooms.Get(id)
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, router.RoomInfo(rm))
}

func (s *Server) handleConnections(w http.ResponseWriter, _ *http.Request) {
	ids := s.conns.IDs()
	s.writeJSON(w, http.StatusOK, ConnectionsResponse{IDs: ids, Count: len(ids)})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("admin response failed", logging.Err(err))
	}
}
