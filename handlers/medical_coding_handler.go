package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/services"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultMaxUploadBytes = 20 << 20

type CodingService interface {
	Code(ctx context.Context, clinicalText string) (*services.CodingReport, error)
	CodePDF(ctx context.Context, path string) (*services.CodingReport, error)
}

type MedicalCodingHandler struct {
	service        CodingService
	uploadDir      string
	maxUploadBytes int64
}

func NewMedicalCodingHandler(service CodingService, uploadDir string) *MedicalCodingHandler {
	return &MedicalCodingHandler{
		service:        service,
		uploadDir:      uploadDir,
		maxUploadBytes: defaultMaxUploadBytes,
	}
}

// Routes returns the HTTP endpoints keyed by mux pattern. The coding endpoint
// answers CORS preflights for any origin; the browser frontends call it
// cross-origin.
func (h *MedicalCodingHandler) Routes() map[string]http.HandlerFunc {
	allowAll := cors.AllowAll()
	return map[string]http.HandlerFunc{
		"/api/medical-coding": allowAll.Handler(http.HandlerFunc(h.handleMedicalCoding)).ServeHTTP,
		"GET /health":         handleHealth,
	}
}

type codingRequest struct {
	Text string `json:"text"`
}

func (h *MedicalCodingHandler) handleMedicalCoding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		report *services.CodingReport
		err    error
	)

	switch mediaType {
	case "application/json":
		var req codingRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, h.maxUploadBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "request body is not valid JSON")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "Provide text or PDF")
			return
		}
		report, err = h.service.Code(r.Context(), req.Text)

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		if file, header, ferr := r.FormFile("file"); ferr == nil {
			defer file.Close()
			if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
				writeError(w, http.StatusBadRequest, "Only PDF files are supported")
				return
			}
			var path string
			path, err = h.stageUpload(file, header.Filename)
			if err != nil {
				logger.Error("Failed to stage upload", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to store upload")
				return
			}
			defer os.Remove(path)
			report, err = h.service.CodePDF(r.Context(), path)
		} else if text := r.FormValue("text"); strings.TrimSpace(text) != "" {
			report, err = h.service.Code(r.Context(), text)
		} else {
			writeError(w, http.StatusBadRequest, "Provide text or PDF")
			return
		}

	default:
		writeError(w, http.StatusBadRequest, "Provide text or PDF")
		return
	}

	if err != nil {
		writeError(w, httpStatus(err), status.Convert(err).Message())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// stageUpload copies the uploaded PDF under uploadDir with a unique name.
func (h *MedicalCodingHandler) stageUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(h.uploadDir, fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(filename)))
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func httpStatus(err error) int {
	switch status.Code(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write response", zap.Error(err))
	}
}
