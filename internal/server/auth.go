package server

import "net/http"

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		InviteCode string `json:"invite_code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	user, token, err := s.app.Register(req.Username, req.Password, req.InviteCode)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"user": user, "token": token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	user, token, err := s.app.Login(req.Username, req.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, map[string]any{"user": user, "token": token})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, _ *http.Request, userID string) {
	info, err := s.app.GetUserInfo(userID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, info)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.app.ChangePassword(userID, req.OldPassword, req.NewPassword); err != nil {
		writeAppError(w, err)
		return
	}
	writeOK(w, nil)
}
