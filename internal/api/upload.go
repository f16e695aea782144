package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/RichardoC/relaychat/internal/backend"
	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"rsc.io/pdf"
)

const (
	maxFormMemory = 32 << 20

	// maxUploadFiles bounds one request; the body cap is derived from it.
	maxUploadFiles = 10
	formOverhead   = 1 << 20
)

var allowedExtensions = []string{".pdf", ".docx", ".doc", ".txt"}

// Collection names follow the vector store's rules: 3-63 characters,
// alphanumeric at both ends, no "..".
var collectionName = func() *regexp2.Regexp {
	re := regexp2.MustCompile(`^(?!.*\.\.)[A-Za-z0-9][A-Za-z0-9._-]{1,61}[A-Za-z0-9]$`, regexp2.None)
	re.MatchTimeout = 100 * time.Millisecond
	return re
}()

// ValidCollectionName reports whether name is acceptable to the backend.
func ValidCollectionName(name string) bool {
	ok, err := collectionName.MatchString(name)
	return err == nil && ok
}

type UploadedFile struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Type  string `json:"type"`
	Pages int    `json:"pages,omitempty"`
}

type UploadResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Files   []UploadedFile  `json:"files"`
	Result  json.RawMessage `json:"result"`
}

// HandleUpload validates documents and forwards them to the backend for
// ingestion. Validation failures are plain-text 400s.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	limit := h.upload.MaxFileSize*maxUploadFiles + formOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("Upload exceeds maximum size of %dMB", limit/(1024*1024)), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "No files provided", http.StatusBadRequest)
		return
	}
	if len(headers) > maxUploadFiles {
		http.Error(w, fmt.Sprintf("Too many files. At most %d files can be uploaded at once.", maxUploadFiles), http.StatusBadRequest)
		return
	}

	collection := strings.TrimSpace(r.FormValue("collection_name"))
	if collection == "" {
		collection = h.upload.DefaultCollection
	}
	if !ValidCollectionName(collection) {
		http.Error(w, fmt.Sprintf("Invalid collection name %q. Use 3-63 letters, digits, '.', '_' or '-', starting and ending with a letter or digit.", collection), http.StatusBadRequest)
		return
	}

	for _, fh := range headers {
		if fh.Size > h.upload.MaxFileSize {
			http.Error(w, fmt.Sprintf("File \"%s\" exceeds maximum size of %dMB", fh.Filename, h.upload.MaxFileSize/(1024*1024)), http.StatusBadRequest)
			return
		}
		if !slices.Contains(allowedExtensions, strings.ToLower(filepath.Ext(fh.Filename))) {
			http.Error(w, fmt.Sprintf("File \"%s\" has an unsupported format. Only PDF, DOCX, and TXT files are allowed.", fh.Filename), http.StatusBadRequest)
			return
		}
	}

	files := make([]UploadedFile, 0, len(headers))
	upload := backend.UploadRequest{
		CollectionName: collection,
		UserID:         h.upload.UserID,
	}
	for _, fh := range headers {
		info := UploadedFile{
			Name: fh.Filename,
			Size: fh.Size,
			Type: fh.Header.Get("Content-Type"),
		}
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if ext == ".pdf" {
			info.Pages = h.countPages(fh)
		}
		files = append(files, info)

		upload.Files = append(upload.Files, backend.UploadFile{
			Name:        fh.Filename,
			ContentType: info.Type,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
		if h.metrics != nil {
			h.metrics.UploadFiles.WithLabelValues(ext).Inc()
		}
	}

	result, err := h.backend.Upload(r.Context(), upload)
	if err != nil {
		if ue, ok := backend.AsUpstream(err); ok {
			status := ue.Status
			if status == 0 {
				status = http.StatusInternalServerError
			}
			body := ue.Body
			if body == "" {
				body = "Backend upload failed"
			}
			http.Error(w, body, status)
			return
		}
		h.logger.Error("Upload failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success: true,
		Message: fmt.Sprintf("Successfully uploaded %d file(s)", len(files)),
		Files:   files,
		Result:  result,
	})
}

// countPages returns the page count of a PDF, or 0 when it cannot be read.
func (h *Handler) countPages(fh *multipart.FileHeader) (pages int) {
	f, err := fh.Open()
	if err != nil {
		return 0
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			h.logger.Debug("PDF parser gave up", zap.String("file", fh.Filename), zap.Any("panic", r))
			pages = 0
		}
	}()

	doc, err := pdf.NewReader(f, fh.Size)
	if err != nil {
		h.logger.Debug("Not a readable PDF", zap.String("file", fh.Filename), zap.Error(err))
		return 0
	}
	return doc.NumPage()
}
