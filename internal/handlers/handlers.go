package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/roadnet-api/internal/extractor"
	"github.com/Brownie44l1/roadnet-api/internal/imageutil"
	"github.com/Brownie44l1/roadnet-api/internal/model"
)

// Form field names accepted for the uploaded image.
const (
	FileField  = "file"
	ImageField = "image"
)

// Handler serves the HTTP API on top of an Extractor.
type Handler struct {
	extractor      *extractor.Extractor
	info           model.Info
	maxUploadBytes int64
	requestTimeout time.Duration
}

// NewHandler returns a Handler. Uploads larger than maxUploadBytes are
// rejected; a zero requestTimeout leaves requests without a deadline.
func NewHandler(ex *extractor.Extractor, info model.Info, maxUploadBytes int64, requestTimeout time.Duration) *Handler {
	return &Handler{
		extractor:      ex,
		info:           info,
		maxUploadBytes: maxUploadBytes,
		requestTimeout: requestTimeout,
	}
}

// Routes returns the API mux wrapped in CORS and request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.Health)
	mux.HandleFunc("/predict", h.Predict)
	return RequestID(CORS(mux))
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("[Handler] Couldn't write response: ", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// Health reports liveness and the loaded model.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, model.HealthResponse{Status: "healthy", Model: h.info})
}

// Predict runs extraction on the multipart upload and returns the images
// and metrics as JSON.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	logger := Logger(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := formFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided. Use 'file' as the form field name")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}
	logger.WithFields(log.Fields{"filename": header.Filename, "bytes": len(data)}).Info("[Predict] Received file")

	ctx := r.Context()
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}

	res, err := h.extractor.ExtractBytes(ctx, data)
	if err != nil {
		status, detail := classify(err)
		logger.WithError(err).WithField("status", status).Warn("[Predict] Extraction failed")
		writeError(w, status, detail)
		return
	}

	resp, err := res.Response()
	if err != nil {
		logger.WithError(err).Error("[Predict] Couldn't encode response images")
		writeError(w, http.StatusInternalServerError, "Prediction failed")
		return
	}

	logger.WithFields(log.Fields{
		"road_pixels":         resp.Metrics.RoadPixels,
		"coverage_percentage": resp.Metrics.CoveragePercentage,
	}).Info("[Predict] Done")
	writeJSON(w, http.StatusOK, resp)
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(FileField)
	if err == nil {
		return file, header, nil
	}
	return r.FormFile(ImageField)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, imageutil.ErrInvalidImage):
		return http.StatusBadRequest, "Invalid image"
	case errors.Is(err, extractor.ErrBusy):
		return http.StatusServiceUnavailable, "Server busy"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Prediction timed out"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request cancelled"
	default:
		return http.StatusInternalServerError, "Prediction failed"
	}
}
