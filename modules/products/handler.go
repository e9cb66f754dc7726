package products

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

// RegisterRoutes - mux 라우터에 products 경로 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/products", h.create).Methods("POST")
	r.HandleFunc("/products", h.list).Methods("GET")
	r.HandleFunc("/products/{id}", h.get).Methods("GET")
	r.HandleFunc("/products/{id}", h.update).Methods("PUT")
	r.HandleFunc("/products/{id}", h.delete).Methods("DELETE")
	r.HandleFunc("/products/{id}/analyze", h.analyze).Methods("POST")
	r.HandleFunc("/products/{id}/json", h.updateJSON).Methods("POST")
	r.HandleFunc("/products/{id}/json", h.finalJSON).Methods("GET")
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

	product, err := h.service.Create(r.Context(), uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	products, err := h.service.List(r.Context(), uid, r.URL.Query().Get("collection_id"))
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	product, err := h.service.Update(r.Context(), mux.Vars(r)["id"], uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
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

	product, err := h.service.Get(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	analyzed, err := h.service.Analyze(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzed)
}

func (h *Handler) updateJSON(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var overrides map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	final, err := h.service.UpdateOverrides(r.Context(), mux.Vars(r)["id"], uid, overrides)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, final)
}

func (h *Handler) finalJSON(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	final, err := h.service.FinalJSON(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, final)
}
