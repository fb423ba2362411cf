package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/safepass/internal/common"
	"github.com/dmitrijs2005/safepass/internal/server/services"
)

type profileRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Profile *string `json:"profile"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type avatarRequest struct {
	ContentType string `json:"contentType"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "User details", envelope{"user": identityFrom(r.Context()).Public()})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	patch := services.ProfilePatch{Name: req.Name, Email: req.Email, Profile: req.Profile}
	user, err := s.identities.UpdateProfile(r.Context(), identityFrom(r.Context()), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Profile updated successfully", envelope{"user": user})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.identities.ChangePassword(r.Context(), identityFrom(r.Context()), req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Password updated successfully", nil)
}

func (s *Server) handleLinkPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.identities.LinkPasswordMethod(r.Context(), identityFrom(r.Context()), req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Password login enabled", nil)
}

func (s *Server) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	if err := s.identities.DeleteIdentity(r.Context(), identityFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.clearSessionCookie())
	writeOK(w, http.StatusOK, "Account deleted successfully", nil)
}

func (s *Server) handleAvatarUpload(w http.ResponseWriter, r *http.Request) {
	var req avatarRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	upload, err := s.avatars.PresignUpload(r.Context(), identityFrom(r.Context()), req.ContentType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Upload URL created", envelope{"upload": upload})
}

func (s *Server) handleAvatarDownload(w http.ResponseWriter, r *http.Request) {
	url, err := s.avatars.PresignDownload(r.Context(), identityFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Download URL created", envelope{"url": url})
}

func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	users, err := s.identities.ListIdentities(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Users", envelope{"users": users})
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", common.ErrorInvalidInput, name)
	}
	return n, nil
}
