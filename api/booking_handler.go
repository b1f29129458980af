package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/services"
)

type BookingHandler struct {
	bookingService *services.BookingService
}

func CreateBookingHandler(bookingService *services.BookingService) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
	}
}

func (h *BookingHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	result, err := h.bookingService.CreateBooking(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", result.Booking.ETag())
	status := http.StatusCreated
	if result.Replayed {
		// Exact replay of a previously completed request.
		status = http.StatusOK
	}
	writeJSON(w, status, result.Booking)
}

func (h *BookingHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	bookings, err := h.bookingService.ListBookings(r.Context(), r.URL.Query().Get("resource_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookings)
}

func (h *BookingHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	booking, err := h.bookingService.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", booking.ETag())
	writeJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.UpdateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	expectedVersion, ok := parseIfMatch(r.Header.Get("If-Match"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid If-Match header"})
		return
	}
	req.ExpectedVersion = expectedVersion

	booking, err := h.bookingService.UpdateBooking(r.Context(), id, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", booking.ETag())
	writeJSON(w, http.StatusOK, booking)
}

func (h *BookingHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.bookingService.ArchiveBooking(r.Context(), id,
		r.Header.Get("X-User-ID"), r.URL.Query().Get("reason"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

type restoreRequest struct {
	UndoToken string `json:"undo_token"`
}

func (h *BookingHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	booking, err := h.bookingService.RestoreBooking(r.Context(), id, req.UndoToken)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("ETag", booking.ETag())
	writeJSON(w, http.StatusOK, booking)
}

// parseIfMatch extracts the expected version from an If-Match precondition.
// Accepted forms: "v3" (quoted entity tag), v3, or a bare integer. A missing
// or wildcard header means no precondition: last writer wins. Anything else
// is rejected rather than silently dropping the caller's precondition.
func parseIfMatch(header string) (*int64, bool) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return nil, true
	}

	header = strings.Trim(header, "\"")
	header = strings.TrimPrefix(header, "v")

	version, err := strconv.ParseInt(header, 10, 64)
	if err != nil {
		return nil, false
	}
	return &version, true
}

func etagForVersion(version int64) string {
	return fmt.Sprintf("\"v%d\"", version)
}
