package server

import (
	"net/http"

	"leafreader/internal/app"
	"leafreader/pkg/domain"
)

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		BookID   string `json:"book_id"`
		DeviceID string `json:"device_id"`
		Position int64  `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	res, err := s.app.Heartbeat(userID, app.HeartbeatInput{
		BookID:   req.BookID,
		DeviceID: req.DeviceID,
		Position: req.Position,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, res)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, userID string) {
	rec, err := s.app.GetProgress(userID, r.PathValue("bookID"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, rec)
}

func (s *Server) handleGetReadingSettings(w http.ResponseWriter, _ *http.Request, userID string) {
	settings, err := s.app.GetReadingSettings(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, settings)
}

func (s *Server) handleSaveReadingSettings(w http.ResponseWriter, r *http.Request, userID string) {
	var settings domain.ReadingSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	saved, err := s.app.SaveReadingSettings(userID, settings)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, saved)
}
