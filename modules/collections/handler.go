package collections

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - mux 라우터에 collections 경로 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/collections", h.create).Methods("POST")
	r.HandleFunc("/collections", h.list).Methods("GET")
	r.HandleFunc("/collections/{id}", h.get).Methods("GET")
	r.HandleFunc("/collections/{id}", h.rename).Methods("PUT")
	r.HandleFunc("/collections/{id}", h.delete).Methods("DELETE")
	r.HandleFunc("/collections/{id}/da", h.attachPreset).Methods("POST")
	r.HandleFunc("/collections/{id}/da", h.finalDA).Methods("GET")
	r.HandleFunc("/da-presets", h.listPresets).Methods("GET")
}

// AttachPresetRequest - POST /collections/{id}/da 요청
type AttachPresetRequest struct {
	PresetID  string                 `json:"preset_id,omitempty"`
	Overrides map[string]interface{} `json:"overrides,omitempty"`
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

// NameRequest - 생성/이름변경 공용 요청
type NameRequest struct {
	Name string `json:"name"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	collection, err := h.service.Create(r.Context(), uid, req.Name)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, collection)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	collections, err := h.service.List(r.Context(), uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, collections)
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req NameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	collection, err := h.service.Rename(r.Context(), mux.Vars(r)["id"], uid, req.Name)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, collection)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), mux.Vars(r)["id"], uid); err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	collection, err := h.service.Get(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, collection)
}

func (h *Handler) attachPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req AttachPresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	final, err := h.service.AttachPreset(r.Context(), mux.Vars(r)["id"], uid, req.PresetID, req.Overrides)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, final)
}

func (h *Handler) finalDA(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	final, err := h.service.FinalDAJSON(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, final)
}

func (h *Handler) listPresets(w http.ResponseWriter, r *http.Request) {
	presets, err := h.service.ListPresets(r.Context())
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, presets)
}
