package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

type ingestedFileResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	StorageURL string `json:"storageUrl"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

type ingestResponse struct {
	Message       string                 `json:"message"`
	OwnerClientID string                 `json:"ownerClientId"`
	BatchID       string                 `json:"batchId"`
	FileCount     int                    `json:"fileCount"`
	Files         []ingestedFileResponse `json:"files"`
}

func (h *Handler) uploadZip(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeMultipartError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	clientID := strings.TrimSpace(r.FormValue("clientId"))

	var upload ports.ArchiveUpload
	file, header, err := r.FormFile("archive")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid archive upload")
		return
	default:
		defer func() { _ = file.Close() }()
		upload = ports.ArchiveUpload{FileName: header.Filename, Size: header.Size, Content: file}
	}

	result, err := h.ingest.Ingest(r.Context(), clientID, upload, domain.MutationMetadata{
		Actor:         "api",
		Source:        "upload-zip",
		CorrelationID: TraceID(r.Context()),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	files := make([]ingestedFileResponse, 0, len(result.Files))
	for _, f := range result.Files {
		files = append(files, ingestedFileResponse{ID: f.ID, Name: f.FileName, StorageURL: f.StorageURL})
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Message:       "archive ingested",
		OwnerClientID: result.OwnerClientID,
		BatchID:       result.BatchID,
		FileCount:     len(files),
		Files:         files,
	})
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.ingest.ListByClient(r.Context(), chi.URLParam(r, "clientId"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	result := make([]ingestedFileResponse, 0, len(files))
	for _, f := range files {
		result = append(result, ingestedFileResponse{
			ID:         f.ID,
			Name:       f.FileName,
			StorageURL: f.StorageURL,
			UploadedAt: f.UploadedAt.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, result)
}
