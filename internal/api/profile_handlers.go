package api

import (
	"net/http"

	"tripplanner/internal/service"
)

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	account, err := s.svc.Accounts.Profile(r.Context(), AccountID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account})
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	account, err := s.svc.Accounts.UpdateProfile(r.Context(), AccountID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account})
}
