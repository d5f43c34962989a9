// Package httpapi is the public HTTP transport: upload, retrieval, password
// assignment, and deletion endpoints plus the operational surface (metrics,
// health probes). Handlers stay thin, mapping service errors to the wire
// contract; all state decisions live in the services.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/dropserve/internal/common"
	"github.com/dmitrijs2005/dropserve/internal/logging"
	"github.com/dmitrijs2005/dropserve/internal/server/auth"
	"github.com/dmitrijs2005/dropserve/internal/server/services"
)

// maxUploadMemory caps the in-memory part of multipart parsing; larger
// bodies spill to temp files.
const maxUploadMemory = 32 << 20

// UploadService accepts one authenticated upload.
type UploadService interface {
	Upload(ctx context.Context, req *services.UploadRequest) (*services.UploadResult, error)
}

// AccessService decides retrieval outcomes and assigns first-access passwords.
type AccessService interface {
	Evaluate(ctx context.Context, request string, password string) (*services.AccessResult, error)
	SetPassword(ctx context.Context, token string, password string) error
}

// DeletionService removes a file by its deletion token.
type DeletionService interface {
	Delete(ctx context.Context, deletionToken string) error
}

type Handler struct {
	uploads   UploadService
	access    AccessService
	deletions DeletionService
	db        Pinger
	jwtSecret []byte
	logger    logging.Logger
}

func NewHandler(uploads UploadService, access AccessService, deletions DeletionService, db Pinger, secretKey string, logger logging.Logger) *Handler {
	return &Handler{
		uploads:   uploads,
		access:    access,
		deletions: deletions,
		db:        db,
		jwtSecret: []byte(secretKey),
		logger:    logger.With("module", "http"),
	}
}

// Routes builds the router. The catch-all retrieval route accepts any method
// so browsers can GET a file and POST the password form to the same URL.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger(h.logger))
	r.Use(metricsMiddleware())

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health/live", h.handleHealthLive)
	r.Get("/health/ready", h.handleHealthReady)

	r.Get("/", h.handleRoot)
	r.Post("/upload", h.handleUpload)
	r.Get("/delete/{token}", h.handleDelete)
	r.Post("/set-password/{token}", h.handleSetPassword)
	r.HandleFunc("/{request}", h.handleRetrieve)

	return r
}

// handleRoot ignores requests to the bare host.
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusNotFound, "File not found.")
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Form fields are needed for both the auth fallback and the protected
	// flag, so parse before the auth check. A malformed body leaves the
	// form empty and fails below as missing token or missing file.
	_ = r.ParseMultipartForm(maxUploadMemory)

	token := bearerToken(r)
	if token == "" {
		token = r.FormValue("auth")
	}
	if _, err := auth.VerifyUploadToken(token, h.jwtSecret); err != nil {
		writeText(w, http.StatusUnauthorized, "Invalid token.")
		return
	}

	req := &services.UploadRequest{}
	if file, header, err := r.FormFile("upload"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			h.logger.Error(r.Context(), "reading upload body failed", "error", err)
			writeText(w, http.StatusInternalServerError, "Internal server error.")
			return
		}
		req.Data = data
		req.Filename = header.Filename
		req.MimeType = header.Header.Get("Content-Type")
	}
	if r.MultipartForm != nil {
		// Presence of the field requests protection, value ignored.
		_, req.Protected = r.MultipartForm.Value["protected"]
	}

	res, err := h.uploads.Upload(r.Context(), req)
	if err != nil {
		if errors.Is(err, common.ErrNoFile) {
			writeText(w, http.StatusBadRequest, "No files were uploaded.")
			return
		}
		writeText(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(res)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	err := h.deletions.Delete(r.Context(), token)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "Deleted file.")
	case errors.Is(err, common.ErrNotFound):
		writeText(w, http.StatusUnauthorized, "Invalid deletion token.")
	default:
		writeText(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	password := r.FormValue("password")

	err := h.access.SetPassword(r.Context(), token, password)
	switch {
	case err == nil:
		http.Redirect(w, r, "/"+token, http.StatusSeeOther)
	case errors.Is(err, common.ErrBadRequest), errors.Is(err, common.ErrAlreadySet):
		writeText(w, http.StatusBadRequest, "Invalid token request.")
	default:
		writeText(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func (h *Handler) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	request := chi.URLParam(r, "request")
	password := r.FormValue("password")

	res, err := h.access.Evaluate(r.Context(), request, password)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeText(w, http.StatusNotFound, "File not found.")
			return
		}
		writeText(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	switch res.Decision {
	case services.DecisionPromptCreate:
		h.renderForm(w, r, createForm, res.Token)
	case services.DecisionPromptEnter:
		h.renderForm(w, r, entryForm, res.Token)
	default:
		defer res.Content.Close()
		w.Header().Set("Content-Type", res.MimeType)
		if _, err := io.Copy(w, res.Content); err != nil {
			// Headers are gone; nothing left to do but log.
			h.logger.Error(r.Context(), "streaming blob failed", "error", err)
		}
	}
}

// bearerToken extracts the upload token from the Authorization header,
// accepting both the "Bearer <token>" form and a bare token.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return header
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
