package server

import (
	"net/http"

	"leafreader/pkg/domain"
)

func (s *Server) handleCheckSetup(w http.ResponseWriter, _ *http.Request) {
	done, err := s.app.CheckSetup()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]bool{"initialized": done})
}

func (s *Server) handleAdminSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	token, err := s.app.AdminSetup(req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]string{"token": token})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	token, err := s.app.AdminLogin(req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]string{"token": token})
}

func (s *Server) handleCreateInviteCode(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		LimitTimes  int64  `json:"limit_times"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	code, err := s.app.CreateInviteCode(req.LimitTimes, req.Description)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, code)
}

func (s *Server) handleListInviteCodes(w http.ResponseWriter, _ *http.Request, _ string) {
	codes, err := s.app.ListInviteCodes()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"invite_codes": codes})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request, _ string) {
	settings, err := s.app.GetSettings()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request, _ string) {
	var settings domain.Settings
	if err := decodeJSON(r, &settings); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	saved, err := s.app.UpdateSettings(settings)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, saved)
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request, _ string) {
	users, err := s.app.ListUsers()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"users": users})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request, _ string) {
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.app.ResetUserPassword(r.PathValue("id"), req.NewPassword); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, nil)
}
