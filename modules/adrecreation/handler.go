package adrecreation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - mux 라우터에 ad-recreations 경로 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ad-recreations", h.create).Methods("POST")
	r.HandleFunc("/ad-recreations", h.list).Methods("GET")
	r.HandleFunc("/ad-recreations/{id}", h.get).Methods("GET")
	r.HandleFunc("/ad-recreations/{id}/analyze", h.analyze).Methods("POST")
	r.HandleFunc("/ad-recreations/{id}/variations", h.variations).Methods("POST")
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("user")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func apiError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrValidation):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		log.Printf("❌ Internal error: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := userID(r)
	if uid == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user identity"})
		return "", false
	}
	return uid, true
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	ad, err := h.service.Create(r.Context(), uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, ad)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ads, err := h.service.List(r.Context(), uid, page, limit)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ads)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	ad, err := h.service.Get(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ad)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	analysis, err := h.service.Analyze(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (h *Handler) variations(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req VariationsRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ad, err := h.service.GenerateVariations(r.Context(), mux.Vars(r)["id"], uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ad)
}
