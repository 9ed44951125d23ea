package api

import (
	"net/http"
	"strings"

	"tripplanner/internal/models"
	"tripplanner/internal/service"

	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) handleListItineraries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := s.svc.Itineraries.List(r.Context(), AccountID(r.Context()), models.ItineraryFilter{
		Status:      strings.TrimSpace(q.Get("status")),
		Destination: q.Get("destination"),
		Limit:       limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itineraries": list})
}

func (s *HTTPServer) handleGetItinerary(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.Itineraries.Get(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itinerary": it})
}

func (s *HTTPServer) handleCreateItinerary(w http.ResponseWriter, r *http.Request) {
	var in service.CreateItineraryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.svc.Itineraries.Create(r.Context(), AccountID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"itinerary": it})
}

func (s *HTTPServer) handleGenerateItinerary(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.Itineraries.Generate(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itinerary": it})
}

func (s *HTTPServer) handleUpdateItinerary(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateItineraryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	it, err := s.svc.Itineraries.Update(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"itinerary": it})
}

func (s *HTTPServer) handleDeleteItinerary(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Itineraries.Delete(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Itinerary deleted successfully"})
}
