package generations

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"modeshoot-server/modules/common/model"
)

// Handler - generations HTTP 핸들러
type Handler struct {
	service *Service
	worker  *Worker
}

func NewHandler(service *Service, worker *Worker) *Handler {
	return &Handler{
		service: service,
		worker:  worker,
	}
}

// RegisterRoutes - mux 라우터에 generations 경로 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generations", h.create).Methods("POST")
	r.HandleFunc("/generations", h.list).Methods("GET")
	r.HandleFunc("/generations/{id}", h.get).Methods("GET")
	r.HandleFunc("/generations/{id}/prompts", h.previewPrompts).Methods("GET")
	r.HandleFunc("/generations/{id}/prompts", h.updatePrompts).Methods("POST")
	r.HandleFunc("/generations/{id}/generate", h.generate).Methods("POST")
	r.HandleFunc("/generations/{id}/reset", h.reset).Methods("POST")
	r.HandleFunc("/generations/{id}/progress", h.progress).Methods("GET")
	r.HandleFunc("/generations/{id}/download", h.download).Methods("GET")
	r.HandleFunc("/generations/{generationId}/visual/{index}/retry", h.retryVisual).Methods("POST")
	r.HandleFunc("/generations/{id}/stream", h.stream).Methods("GET")
	r.HandleFunc("/ws/generations", h.websocket)
}

// userID - 요청에서 사용자 식별자 추출 (게이트웨이가 채워주는 헤더)
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

// apiError - 도메인 에러를 HTTP 상태로 매핑
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

	var req CreateGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	gen, err := h.service.Create(r.Context(), uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, gen)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	filters := model.GenerationFilters{
		ProductID:      q.Get("product_id"),
		CollectionID:   q.Get("collection_id"),
		GenerationType: q.Get("generation_type"),
		Status:         q.Get("status"),
		Page:           page,
		Limit:          limit,
	}

	result, err := h.service.List(r.Context(), uid, filters)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	gen, err := h.service.Get(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gen)
}

func (h *Handler) previewPrompts(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	prompts, err := h.service.PreviewPrompts(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prompts)
}

func (h *Handler) updatePrompts(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdatePromptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}

	gen, err := h.service.UpdatePrompts(r.Context(), mux.Vars(r)["id"], uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gen)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if r.Body != nil {
		// body 없는 호출 허용
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	gen, err := h.service.Generate(r.Context(), mux.Vars(r)["id"], uid, req)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, gen)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	gen, err := h.service.Reset(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gen)
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	progress, err := h.service.Progress(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	data, filename, err := h.service.BuildArchive(r.Context(), mux.Vars(r)["id"], uid)
	if err != nil {
		apiError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) retryVisual(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		apiError(w, fmt.Errorf("%w: invalid visual index", ErrValidation))
		return
	}

	// body는 optional ({model})
	var req RetryVisualRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	gen, err := h.worker.RetryVisual(r.Context(), vars["generationId"], uid, index, req.Model)
	if err != nil {
		apiError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, gen)
}
