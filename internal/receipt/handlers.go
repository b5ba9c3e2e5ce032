package receipt

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/zombor/receipt-processor/internal/parsing"
)

const (
	maxUploadSize = 32 << 20
	maxTextSize   = 1 << 20
)

// allowedTypes are the upload formats the scanners can read
var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".heif": "image/heif",
	".pdf":  "application/pdf",
}

func userID(r *http.Request) string {
	if id, ok := IdentityFromContext(r.Context()); ok {
		return id.UserID
	}
	return LocalUserID
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"message":   "receipt processor is running",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

type sessionUser struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type tokenInfo struct {
	IssuedAt            int64   `json:"issued_at,omitempty"`
	ExpiresAt           int64   `json:"expires_at,omitempty"`
	TimeUntilExpiration float64 `json:"time_until_expiration"`
	ExpiresSoon         bool    `json:"expires_soon"`
}

// handleValidateSession reports who the token belongs to and how long it has left
func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())
	if id == nil {
		id = &Identity{UserID: LocalUserID}
	}

	info := tokenInfo{}
	if !id.IssuedAt.IsZero() {
		info.IssuedAt = id.IssuedAt.Unix()
	}
	if !id.ExpiresAt.IsZero() {
		info.ExpiresAt = id.ExpiresAt.Unix()
		info.TimeUntilExpiration = id.ExpiresAt.Sub(s.now()).Seconds()
		info.ExpiresSoon = info.TimeUntilExpiration < 300
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"user":       sessionUser{UID: id.UserID, Email: id.Email, Name: id.Name},
		"token_info": info,
	})
}

// handleListReceipts returns the caller's receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts(userID(r))
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// uploadContentType picks the MIME type for an upload, falling back to the
// extension and then to sniffing the bytes
func uploadContentType(declared, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
			return ct
		}
		contentType, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	return contentType
}

// handleUploadReceipt handles receipt upload
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, "File is too large. Maximum size is 32MB.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		jsonError(w, "File is too large. Maximum size is 32MB.", http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename, data)
	if !allowedTypes[contentType] {
		jsonError(w, "Unsupported file type. Supported formats: JPEG, PNG, GIF, WebP, HEIC, PDF.", http.StatusUnsupportedMediaType)
		return
	}

	receipt, err := s.service.ProcessReceipt(r.Context(), userID(r), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		if errors.Is(err, parsing.ErrNoText) {
			jsonError(w, parsing.ErrNoText.Error(), http.StatusUnprocessableEntity)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, receipt)
}

// handleParseText runs the engine over a plain-text body
func (s *Server) handleParseText(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextSize))
	if err != nil {
		jsonError(w, "Error reading body", http.StatusBadRequest)
		return
	}

	record, err := s.service.ParseText(string(body))
	if err != nil {
		if errors.Is(err, parsing.ErrNoText) {
			jsonError(w, parsing.ErrNoText.Error(), http.StatusUnprocessableEntity)
			return
		}
		slog.Error("Error parsing text", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleExportReceipts streams the caller's receipts as an XLSX workbook
func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	data, err := s.service.ExportXLSX(userID(r))
	if err != nil {
		slog.Error("Error exporting receipts", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	w.Write(data)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	receipt, err := s.service.GetReceipt(userID(r), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting receipt", "id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	data, contentType, err := s.service.GetReceiptFile(userID(r), id)
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Receipt ID required", http.StatusBadRequest)
		return
	}
	if err := s.service.DeleteReceipt(userID(r), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting receipt", "id", id, "error", err)
		http.Error(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
