package api

import (
	"net/http"
	"strings"
	"time"

	"tripplanner/internal/domain"
	"tripplanner/internal/export"
	"tripplanner/internal/models"
	"tripplanner/internal/service"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	list, err := s.svc.Bookings.List(r.Context(), AccountID(r.Context()), models.BookingFilter{
		Type:        strings.TrimSpace(q.Get("type")),
		Status:      strings.TrimSpace(q.Get("status")),
		ItineraryID: strings.TrimSpace(q.Get("itineraryId")),
		Limit:       limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Bookings.Get(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var in service.CreateBookingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Bookings.Create(r.Context(), AccountID(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"booking": b})
}

func (s *HTTPServer) handleUpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.svc.Bookings.UpdateStatus(r.Context(), AccountID(r.Context()), chi.URLParam(r, "id"), body.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"booking": b})
}

func (s *HTTPServer) handleSearchFlights(w http.ResponseWriter, r *http.Request) {
	var q domain.FlightSearch
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	offers, err := s.svc.Bookings.SearchFlights(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flights": offers})
}

func (s *HTTPServer) handleSearchHotels(w http.ResponseWriter, r *http.Request) {
	var q domain.HotelSearch
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	offers, err := s.svc.Bookings.SearchHotels(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hotels": offers})
}

// handleExportBookings streams an XLSX of bookings made between from and to,
// both inclusive calendar days.
func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if to.Before(from) {
		writeError(w, r, domain.Validation("to must not be before from"))
		return
	}

	list, err := s.svc.Bookings.InRange(r.Context(), AccountID(r.Context()), from, to.AddDate(0, 0, 1))
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment(w, export.FileName(from, to), xlsxContentType)
	if err := export.WriteBookings(w, from, to, list); err != nil {
		s.logger.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("Failed to write bookings export")
	}
}

func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, domain.Validation("%s is required", name)
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.Validation("%s must be YYYY-MM-DD", name)
	}
	return t, nil
}
