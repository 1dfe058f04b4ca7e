package api

import (
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if eris.Is(err, auth.ErrInvalidToken) {
		writeFail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleLogout ends the session the access token belongs to.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	if err := s.auth.Logout(r.Context(), id.User.ID, id.SessionToken); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Successfully logged out"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "If the email exists, a password reset link has been sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	confirm := req.ConfirmPassword
	if confirm == "" {
		confirm = req.NewPassword
	}
	if err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword, confirm); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password successfully reset"})
}

func (s *Server) handleGoogleURL(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.GoogleAuthURL()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": u})
}

// handleGoogleCallback completes the Google flow. Provider and state
// failures are reported as a single 400.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		writeFail(w, http.StatusBadRequest, "Google authentication failed")
		return
	}
	sess, err := s.auth.GoogleLogin(r.Context(), code, q.Get("state"))
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError || eris.Is(err, auth.ErrInvalidToken) {
			s.log.Warn("api: google login failed", zap.Error(err))
			status, msg = http.StatusBadRequest, "Google authentication failed"
		}
		writeFail(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	writeJSON(w, http.StatusOK, id.User)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req auth.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	id, _ := auth.FromContext(r.Context())
	u, err := s.auth.UpdateProfile(r.Context(), id.User, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
