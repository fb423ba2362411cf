package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/server/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Profile string `json:"profile"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.Error(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, envelope{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true})
}

// startSession sets the session cookie and writes the identity.
func (s *Server) startSession(w http.ResponseWriter, status int, msg string, user *models.PublicIdentity, token string) {
	http.SetCookie(w, s.sessionCookie(token))
	writeOK(w, status, msg, envelope{"user": user})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, token, err := s.identities.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.startSession(w, http.StatusCreated, "User registered successfully", user, token)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, token, err := s.identities.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.startSession(w, http.StatusOK, "Logged in successfully", user, token)
}

func (s *Server) handleFederated(w http.ResponseWriter, r *http.Request) {
	if s.opts.FederationKey != "" {
		got := r.Header.Get(common.FederationKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.FederationKey)) != 1 {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}
	}

	var req federatedRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, token, err := s.identities.FederatedLogin(r.Context(), req.Email, req.Name, req.Profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.startSession(w, http.StatusOK, "Logged in successfully", user, token)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, s.clearSessionCookie())
	writeOK(w, http.StatusOK, "Logged out successfully", nil)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "Authenticated", envelope{"user": identityFrom(r.Context()).Public()})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.recovery.IssueResetToken(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "If the email is registered, a password reset link has been sent", nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.recovery.ConsumeResetToken(r.Context(), r.URL.Query().Get("token"), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Password reset successfully", nil)
}

func (s *Server) handleVerificationCode(w http.ResponseWriter, r *http.Request) {
	if err := s.recovery.IssueVerificationCode(r.Context(), identityFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Verification code sent", nil)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.recovery.ConsumeVerificationCode(r.Context(), identityFrom(r.Context()), req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Email verified successfully", envelope{"user": user})
}
