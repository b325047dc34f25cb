package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"

	"localcog/internal/chat"
	"localcog/internal/config"
	"localcog/internal/inference"
	"localcog/internal/rag"
	"localcog/internal/semantics"
)

const maxUploadBytes = 64 << 20

type ModelLister interface {
	ListModels(ctx context.Context) (*inference.ModelList, error)
}

type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
}

type Ingester interface {
	Ingest(ctx context.Context, raw []byte, filename string) (int, error)
	Stats() rag.Stats
}

type Searcher interface {
	Invoke(ctx context.Context, query string) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (semantics.Analysis, error)
}

// SettingsStore holds the switches that can change at runtime.
type SettingsStore interface {
	Settings() config.Settings
	Update(u config.SettingsUpdate) config.Settings
}

// Deps are the services behind the API. Search may be nil, which disables
// web search regardless of Settings.
type Deps struct {
	Models    ModelLister
	Chat      ChatService
	Ingest    Ingester
	Search    Searcher
	Semantics Analyzer
	Settings  SettingsStore
}

type Handler struct {
	deps           Deps
	requestTimeout time.Duration
	logger         *log.Logger
}

func NewHandler(deps Deps, requestTimeout time.Duration, logger *log.Logger) *Handler {
	if requestTimeout <= 0 {
		requestTimeout = 3 * time.Minute
	}
	return &Handler{deps: deps, requestTimeout: requestTimeout, logger: logger}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	models, err := h.deps.Models.ListModels(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models)
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	resp, err := h.deps.Chat.Chat(ctx, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type ingestResponse struct {
	OK     bool   `json:"ok"`
	File   string `json:"file"`
	Chunks int    `json:"chunks"`
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	n, err := h.deps.Ingest.Ingest(ctx, raw, header.Filename)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, File: header.Filename, Chunks: n})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Ingest.Stats())
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if !h.webAccess() {
		writeError(w, http.StatusForbidden, "Web access disabled")
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	summary, err := h.deps.Search.Invoke(ctx, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (h *Handler) Semantics(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()
	analysis, err := h.deps.Semantics.Analyze(ctx, q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

type settingsResponse struct {
	OK       bool            `json:"ok"`
	Settings config.Settings `json:"settings"`
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if h.deps.Settings == nil {
		writeError(w, http.StatusNotFound, "settings unavailable")
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{OK: true, Settings: h.deps.Settings.Settings()})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if h.deps.Settings == nil {
		writeError(w, http.StatusNotFound, "settings unavailable")
		return
	}
	var u config.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s := h.deps.Settings.Update(u)
	h.logger.Info().
		Bool("allow_web_access", s.AllowWebAccess).
		Bool("cuda_enabled", s.CUDAEnabled).
		Str("request_id", RequestID(r.Context())).
		Msg("settings updated")
	writeJSON(w, http.StatusOK, settingsResponse{OK: true, Settings: s})
}

func (h *Handler) webAccess() bool {
	if h.deps.Search == nil {
		return false
	}
	return h.deps.Settings == nil || h.deps.Settings.Settings().AllowWebAccess
}

// fail maps an error onto a status code and logs it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var backendErr *inference.BackendError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, inference.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, inference.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &backendErr):
		status = http.StatusBadGateway
	}
	h.logger.Warn().Err(err).Str("request_id", RequestID(r.Context())).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
