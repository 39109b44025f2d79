package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	importservice "github.com/FACorreiaa/statement-import/internal/domain/import/service"
	"github.com/FACorreiaa/statement-import/internal/domain/import/statement"
)

// multipartOverhead is the allowance for form fields and boundaries on top of
// the upload size limit.
const multipartOverhead = 1 << 20

// ImportHandler exposes the import workflow over JSON/HTTP.
type ImportHandler struct {
	importSvc *importservice.ImportService
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importSvc *importservice.ImportService, logger *slog.Logger) *ImportHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportHandler{
		importSvc: importSvc,
		logger:    logger,
	}
}

// WithRateLimit throttles uploads to perSecond with the given burst. Other
// routes are not limited.
func (h *ImportHandler) WithRateLimit(perSecond float64, burst int) *ImportHandler {
	if perSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
	return h
}

// RegisterRoutes sets up the HTTP routes.
func (h *ImportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/imports", h.upload)
	mux.HandleFunc("GET /v1/imports/{token}", h.session)
	mux.HandleFunc("DELETE /v1/imports/{token}", h.abandon)
	mux.HandleFunc("POST /v1/imports/{token}/preview", h.preview)
	mux.HandleFunc("POST /v1/imports/{token}/analyze", h.analyze)
	mux.HandleFunc("POST /v1/imports/{token}/confirm", h.confirm)
	mux.HandleFunc("POST /v1/rollbacks/{token}", h.rollback)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (h *ImportHandler) upload(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many uploads, retry later")
		return
	}

	limit := h.importSvc.Limits().MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, statement.ErrUploadTooLarge.Error())
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded, use form field 'file'")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	res, err := h.importSvc.Upload(r.Context(), importservice.UploadRequest{
		Filename:    header.Filename,
		Data:        data,
		BankHint:    r.FormValue("bank_hint"),
		AccountHint: r.FormValue("account_hint"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *ImportHandler) session(w http.ResponseWriter, r *http.Request) {
	snap, err := h.importSvc.Session(r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ImportHandler) abandon(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if err := h.importSvc.Abandon(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.importSvc.Session(token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ImportHandler) preview(w http.ResponseWriter, r *http.Request) {
	p, err := h.importSvc.Preview(r.Context(), r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ImportHandler) analyze(w http.ResponseWriter, r *http.Request) {
	a, err := h.importSvc.Analyze(r.Context(), r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *ImportHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req importservice.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid confirm body: %v", err))
		return
	}
	res, err := h.importSvc.Confirm(r.Context(), r.PathValue("token"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ImportHandler) rollback(w http.ResponseWriter, r *http.Request) {
	res, err := h.importSvc.Rollback(r.Context(), r.PathValue("token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// fail writes err with the status its kind maps to. Unexpected errors are
// logged and reported as 500.
func (h *ImportHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("import request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		notSupported *statement.NotSupportedError
		stateErr     *statement.SessionStateError
		busy         *statement.SessionBusyError
		already      *statement.AlreadyRolledBackError
		ambiguous    *statement.DuplicateAmbiguousError
		rollback     *statement.RollbackFailedError
	)
	switch {
	case errors.Is(err, importservice.ErrSessionNotFound),
		errors.Is(err, importservice.ErrRollbackTokenUnknown):
		return http.StatusNotFound
	case errors.As(err, &busy):
		return http.StatusLocked
	case errors.As(err, &stateErr), errors.As(err, &already):
		return http.StatusConflict
	case errors.Is(err, importservice.ErrRollbackExpired):
		return http.StatusGone
	case errors.Is(err, importservice.ErrInvalidSelection),
		errors.Is(err, importservice.ErrInvalidMappings),
		errors.As(err, &ambiguous):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notSupported):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, statement.ErrEmptyDocument):
		return http.StatusBadRequest
	case errors.Is(err, statement.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &rollback):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
