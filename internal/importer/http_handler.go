package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/avergara/uniondb/internal/domain"
)

// Handler exposes the import pipeline as an operator-facing HTTP API.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with its route set.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the import routes on the given mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /import/sessions", h.createSession)
	mux.HandleFunc("GET /import/sessions/{id}", h.getSession)
	mux.HandleFunc("POST /import/sessions/{id}/threshold", h.setThreshold)
	mux.HandleFunc("PUT /import/sessions/{id}/records/{index}", h.updateRecord)
	mux.HandleFunc("POST /import/sessions/{id}/execute", h.execute)
}

type sessionResponse struct {
	ID                     uuid.UUID             `json:"id"`
	Threshold              float64               `json:"threshold"`
	SuggestionsUnavailable bool                  `json:"suggestions_unavailable"`
	Records                []*domain.DraftRecord `json:"records"`
}

func newSessionResponse(session *Session) sessionResponse {
	return sessionResponse{
		ID:                     session.ID,
		Threshold:              session.Threshold(),
		SuggestionsUnavailable: session.SuggestionsUnavailable(),
		Records:                session.Records(),
	}
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, fmt.Sprintf("invalid form data: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("file required: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	var threshold *float64
	if raw := strings.TrimSpace(r.FormValue("threshold")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid threshold: %v", err), http.StatusBadRequest)
			return
		}
		threshold = &value
	}

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read file: %v", err), http.StatusBadRequest)
		return
	}

	session, err := h.service.CreateSession(r.Context(), header.Filename, payload, threshold)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Threshold float64 `json:"threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	if err := session.SetThreshold(r.Context(), body.Threshold); err != nil {
		// Matching-service failures leave record state intact; report them
		// without discarding the session.
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid record index", http.StatusBadRequest)
		return
	}

	var edited domain.DraftRecord
	if err := json.NewDecoder(r.Body).Decode(&edited); err != nil {
		http.Error(w, fmt.Sprintf("invalid body: %v", err), http.StatusBadRequest)
		return
	}

	updated, err := session.UpdateRecord(r.Context(), index, &edited)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	result := session.Execute(r.Context(), func(line string) {
		log.Printf("[IMPORT] %s: %s", session.ID, line)
	})

	if len(result.Failures) == 0 {
		h.service.Remove(session.ID)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return nil, false
	}
	session, err := h.service.Get(id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return nil, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return session, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
