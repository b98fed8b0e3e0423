package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/direct-upload/pkg/directupload"
)

// DefaultRetryAfterSeconds is sent with 503 responses for retryable credential failures
const DefaultRetryAfterSeconds = 5

// MaxUploadMemory is the part of a server-side multipart upload kept in memory
const MaxUploadMemory = 32 << 20

// Handler exposes the authorization service and the storage helpers over HTTP
type Handler struct {
	service directupload.Service
	store   directupload.ObjectStore
	logger  *slog.Logger
}

// NewHandler creates a Handler. store may be nil, in which case the storage
// routes answer 501.
func NewHandler(service directupload.Service, store directupload.ObjectStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

// Routes returns the router for all endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	// Called by the browser upload page before it posts to the bucket
	r.Get("/upload/authorization", h.AuthorizeNewDirectory)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/authorizations", h.Authorize)
		r.Get("/authorizations", h.ListAuthorizations)
		r.Get("/authorizations/{id}", h.GetAuthorization)
		r.Get("/download-url", h.GetDownloadURL)
		r.Get("/text", h.GetText)
		r.Get("/image", h.GetImage)
		r.Post("/upload", h.Upload)
	})
	return r
}

// AuthorizeRequest is the body of POST /api/v1/authorizations
type AuthorizeRequest struct {
	Directory string `json:"directory"`
}

// DownloadURLResponse carries a presigned download URL
type DownloadURLResponse struct {
	ObjectKey string `json:"object_key"`
	URL       string `json:"url"`
}

// UploadResponse is returned after a server-side upload
type UploadResponse struct {
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type"`
}

// TextResponse carries the body of a text object
type TextResponse struct {
	ObjectKey string `json:"object_key"`
	Body      string `json:"body"`
}

// ErrorResponse is the JSON body of every error answer
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.service.Ready() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "starting"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

func (h *Handler) AuthorizeNewDirectory(w http.ResponseWriter, r *http.Request) {
	auth, err := h.service.AuthorizeNewDirectory(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "authorize new directory", err)
		return
	}
	render.JSON(w, r, auth)
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	auth, err := h.service.Authorize(r.Context(), directupload.AuthorizeRequest{Directory: req.Directory})
	if err != nil {
		h.writeServiceError(w, r, "authorize", err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, auth)
}

func (h *Handler) ListAuthorizations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.service.ListAuthorizations(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, "list authorizations", err)
		return
	}
	if records == nil {
		records = []*directupload.AuthorizationRecord{}
	}
	render.JSON(w, r, records)
}

func (h *Handler) GetAuthorization(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid authorization id")
		return
	}

	record, err := h.service.GetAuthorization(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, "get authorization", err)
		return
	}
	render.JSON(w, r, record)
}

func (h *Handler) GetDownloadURL(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, http.StatusNotImplemented, "storage not configured")
		return
	}
	key := r.URL.Query().Get("key")
	if !validObjectKey(key) {
		h.writeError(w, r, http.StatusBadRequest, "invalid object key")
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = path.Base(key)
	}

	url, err := h.store.GetDownloadURL(r.Context(), key, filename)
	if err != nil {
		h.writeServiceError(w, r, "get download url", err)
		return
	}
	render.JSON(w, r, DownloadURLResponse{ObjectKey: key, URL: url})
}

func (h *Handler) GetText(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, http.StatusNotImplemented, "storage not configured")
		return
	}
	key := r.URL.Query().Get("key")
	if !validObjectKey(key) {
		h.writeError(w, r, http.StatusBadRequest, "invalid object key")
		return
	}

	body, err := h.store.GetText(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, "get text", err)
		return
	}
	render.JSON(w, r, TextResponse{ObjectKey: key, Body: body})
}

// imageTypes are the content types GetImage serves
var imageTypes = []string{"image/jpeg", "image/png", "image/gif"}

// GetImage streams an image object with its stored content type. Objects
// stored without one are typed by their extension.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, http.StatusNotImplemented, "storage not configured")
		return
	}
	key := r.URL.Query().Get("key")
	if !validObjectKey(key) {
		h.writeError(w, r, http.StatusBadRequest, "invalid object key")
		return
	}

	obj, err := h.store.GetObject(r.Context(), key)
	if err != nil {
		h.writeServiceError(w, r, "get image", err)
		return
	}
	defer obj.Body.Close()

	contentType := imageType(obj.ContentType, key)
	if contentType == "" {
		h.writeError(w, r, http.StatusUnsupportedMediaType, "object is not a jpeg, png or gif image")
		return
	}
	if !accepts(r.Header.Get("Accept"), contentType) {
		h.writeError(w, r, http.StatusNotAcceptable, "image is "+contentType)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("image stream interrupted", "object_key", key, "err", err)
	}
}

// imageType returns the servable image type of an object, or "" when it is not one
func imageType(stored, key string) string {
	candidate := stored
	if candidate == "" || candidate == "application/octet-stream" {
		candidate = mime.TypeByExtension(path.Ext(key))
	}
	mediaType, _, err := mime.ParseMediaType(candidate)
	if err != nil {
		return ""
	}
	for _, t := range imageTypes {
		if mediaType == t {
			return t
		}
	}
	return ""
}

// accepts reports whether an Accept header admits contentType. An absent
// header accepts everything; q-values are ignored apart from q=0.
func accepts(header, contentType string) bool {
	if strings.TrimSpace(header) == "" {
		return true
	}
	major := strings.SplitN(contentType, "/", 2)[0]
	for _, part := range strings.Split(header, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if q, ok := params["q"]; ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				continue
			}
		}
		if mediaType == "*/*" || mediaType == contentType || mediaType == major+"/*" {
			return true
		}
	}
	return false
}

// Upload stores a multipart "file" part under the "directory" form value
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, r, http.StatusNotImplemented, "storage not configured")
		return
	}
	if err := r.ParseMultipartForm(MaxUploadMemory); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "missing file part")
		return
	}
	defer file.Close()

	filename := path.Base(header.Filename)
	if filename == "." || filename == "/" || filename == ".." {
		h.writeError(w, r, http.StatusBadRequest, "invalid file name")
		return
	}
	key := filename
	if dir := strings.Trim(r.FormValue("directory"), "/"); dir != "" {
		key = dir + "/" + filename
	}
	if !validObjectKey(key) {
		h.writeError(w, r, http.StatusBadRequest, "invalid object key")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.store.Upload(r.Context(), key, contentType, file); err != nil {
		h.writeServiceError(w, r, "upload", err)
		return
	}

	h.logger.Info("object uploaded", "object_key", key, "size", header.Size)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, UploadResponse{ObjectKey: key, ContentType: contentType})
}

// writeServiceError maps service errors onto status codes. Error text leaves
// the server only for client mistakes; everything else is logged.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, directupload.ErrNotReady):
		h.writeError(w, r, http.StatusServiceUnavailable, "service not ready")
	case errors.Is(err, directupload.ErrInvalidDirectory):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directupload.ErrObjectNotFound):
		h.writeError(w, r, http.StatusNotFound, "object not found")
	case errors.Is(err, directupload.ErrAuthorizationNotFound):
		h.writeError(w, r, http.StatusNotFound, "authorization not found")
	case directupload.IsRetryable(err):
		h.logger.Warn("request failed, retryable", "op", op, "err", err)
		w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
		h.writeError(w, r, http.StatusServiceUnavailable, "temporary credential service unavailable")
	case directupload.IsDenied(err):
		h.logger.Error("credential request denied", "op", op, "err", err)
		h.writeError(w, r, http.StatusBadGateway, "temporary credential request denied")
	case directupload.IsConfigurationError(err):
		h.logger.Error("configuration error", "op", op, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "server misconfigured")
	default:
		h.logger.Error("request failed", "op", op, "err", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

func validObjectKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}
