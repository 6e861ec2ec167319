package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/usecase"
)

type clientResponse struct {
	CI        string  `json:"ci"`
	Names     string  `json:"names"`
	Address   string  `json:"address"`
	Phone     string  `json:"phone"`
	Photo1URL *string `json:"photo1Url"`
	Photo2URL *string `json:"photo2Url"`
	Photo3URL *string `json:"photo3Url"`
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.List(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	result := make([]clientResponse, 0, len(clients))
	for _, c := range clients {
		result = append(result, toClientResponse(c))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.clients.Get(r.Context(), chi.URLParam(r, "ci"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(c))
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeMultipartError(w, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var photos []usecase.PhotoUpload
	for _, slot := range usecase.PhotoSlots {
		file, header, err := r.FormFile(slot)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+slot+" upload")
			return
		}
		defer func(f multipart.File) { _ = f.Close() }(file)
		photos = append(photos, usecase.PhotoUpload{Slot: slot, FileName: header.Filename, Content: file})
	}

	created, err := h.clients.Create(r.Context(), domain.Client{
		ID:      r.FormValue("ci"),
		Names:   r.FormValue("names"),
		Address: r.FormValue("address"),
		Phone:   r.FormValue("phone"),
	}, photos)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/clients/"+url.PathEscape(created.ID))
	writeJSON(w, http.StatusCreated, toClientResponse(created))
}

func (h *Handler) updateClient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	var payload json.RawMessage
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	updated, err := h.clients.Update(r.Context(), chi.URLParam(r, "ci"), payload)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(updated))
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.clients.Delete(r.Context(), chi.URLParam(r, "ci"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toClientResponse(c domain.Client) clientResponse {
	return clientResponse{
		CI:        c.ID,
		Names:     c.Names,
		Address:   c.Address,
		Phone:     c.Phone,
		Photo1URL: c.Photo1URL,
		Photo2URL: c.Photo2URL,
		Photo3URL: c.Photo3URL,
	}
}

func writeMultipartError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusBadRequest, "upload exceeds size limit")
		return
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		writeError(w, http.StatusBadRequest, "truncated multipart body")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid multipart form")
}
