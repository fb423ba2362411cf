package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/safepass/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type recordRequest struct {
	SiteName string   `json:"siteName"`
	SiteURL  string   `json:"siteUrl"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Notes    string   `json:"notes"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type recordPatchRequest struct {
	SiteName *string   `json:"siteName"`
	SiteURL  *string   `json:"siteUrl"`
	Username *string   `json:"username"`
	Password *string   `json:"password"`
	Notes    *string   `json:"notes"`
	Category *string   `json:"category"`
	Tags     *[]string `json:"tags"`
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.vault.Create(r.Context(), identityFrom(r.Context()), services.NewRecord{
		SiteName: req.SiteName,
		SiteURL:  req.SiteURL,
		Username: req.Username,
		Secret:   req.Password,
		Notes:    req.Notes,
		Category: req.Category,
		Tags:     req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusCreated, "Password saved successfully", envelope{"record": record})
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.vault.List(r.Context(), identityFrom(r.Context()), services.ListFilter{
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Passwords", envelope{"records": records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.vault.Get(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Password", envelope{"record": record})
}

func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	var req recordPatchRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.vault.Edit(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"), services.RecordPatch{
		SiteName: req.SiteName,
		SiteURL:  req.SiteURL,
		Username: req.Username,
		Secret:   req.Password,
		Notes:    req.Notes,
		Category: req.Category,
		Tags:     req.Tags,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Password updated successfully", envelope{"record": record})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.vault.Delete(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Password deleted successfully", nil)
}
