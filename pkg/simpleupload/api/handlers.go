package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// Route paths
const (
	UploadURLPath         = "/api/r2/upload-url"
	LegacyImageUploadPath = "/astria/train-model/image-upload"
)

// LegacyRedirectMessage is returned by the legacy image upload endpoint
const LegacyRedirectMessage = "Please use the new R2 upload endpoint: " + UploadURLPath

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// LegacyUploadResponse tells old clients to switch to the upload-url endpoint
type LegacyUploadResponse struct {
	Message      string `json:"message"`
	RedirectToR2 bool   `json:"redirectToR2"`
}

// Handlers serves the upload endpoints
type Handlers struct {
	issuer   simpleupload.PolicyIssuer
	verifier simpleupload.SessionVerifier
}

// NewHandlers creates the upload handlers
func NewHandlers(issuer simpleupload.PolicyIssuer, verifier simpleupload.SessionVerifier) *Handlers {
	return &Handlers{
		issuer:   issuer,
		verifier: verifier,
	}
}

// Mount registers the upload routes on r
func (h *Handlers) Mount(r chi.Router) {
	r.Post(UploadURLPath, h.CreateUploadURL)
	r.Post(LegacyImageUploadPath, h.LegacyImageUpload)
}

// Routes returns a router with the upload routes mounted
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// CreateUploadURL issues a presigned POST policy for the file described in
// the JSON body.
func (h *Handlers) CreateUploadURL(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req simpleupload.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Error generating upload URL", "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		slog.Warn("Invalid upload request", "request_id", RequestIDFromContext(r.Context()), "user_id", user.ID, "file_name", req.FileName, "content_type", req.ContentType)
		writeError(w, r, StatusForError(err), "Missing fileName or contentType")
		return
	}

	policy, err := h.issuer.Issue(r.Context(), req.FileName, req.ContentType)
	if err != nil {
		slog.Error("Error generating upload URL", "request_id", RequestIDFromContext(r.Context()), "user_id", user.ID, "file_name", req.FileName, "error", err)
		writeError(w, r, StatusForError(err), err.Error())
		return
	}

	slog.Info("Upload URL issued", "request_id", RequestIDFromContext(r.Context()), "user_id", user.ID, "key", policy.Key)
	render.JSON(w, r, policy)
}

// LegacyImageUpload answers the retired direct image upload route. It keeps
// the auth gate and otherwise always points callers at CreateUploadURL.
func (h *Handlers) LegacyImageUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	render.JSON(w, r, LegacyUploadResponse{
		Message:      LegacyRedirectMessage,
		RedirectToR2: true,
	})
}

// authenticate writes a 401 and returns false when the request has no session
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (*simpleupload.User, bool) {
	user, err := h.verifier.CurrentUser(r)
	if err != nil {
		slog.Error("Failed to verify session", "request_id", RequestIDFromContext(r.Context()), "error", err)
	}
	if err != nil || user == nil {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return user, true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

// StatusForError maps package errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, simpleupload.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, simpleupload.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
