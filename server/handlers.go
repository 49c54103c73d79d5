package server

import (
	"encoding/json"
	"net/http"

	"github.com/DrUlysses/Kristine-sub000/core/session"
	"github.com/DrUlysses/Kristine-sub000/logger"
	"github.com/DrUlysses/Kristine-sub000/model"
)

// handleSongs returns the local catalog. ?q= filters it.
func (s *SessionServer) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs := []model.Track{}
	if s.opts.Songs != nil {
		var err error
		query := r.URL.Query().Get("q")
		if query == "" {
			songs, err = s.opts.Songs.ListSongs(r.Context())
		} else {
			songs, err = s.opts.Songs.FindSongs(r.Context(), query)
		}
		if err != nil {
			logger.Error("list songs failed", logger.ErrorField(err))
			http.Error(w, "Failed to list songs", http.StatusInternalServerError)
			return
		}
		if songs == nil {
			songs = []model.Track{}
		}
	}
	writeJSON(w, http.StatusOK, songs)
}

func sessionsHandler(hub *session.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Sessions())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("write response failed", logger.ErrorField(err))
	}
}
