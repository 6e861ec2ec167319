package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

type auditSummaryResponse struct {
	ID              int64   `json:"id"`
	Timestamp       string  `json:"timestamp"`
	Kind            string  `json:"kind"`
	EndpointURL     string  `json:"endpointUrl"`
	HTTPMethod      string  `json:"httpMethod"`
	RemoteAddress   string  `json:"remoteAddress"`
	RequestPreview  string  `json:"requestPreview"`
	ResponsePreview string  `json:"responsePreview"`
	Detail          *string `json:"detail"`
}

type auditRecordResponse struct {
	ID            int64   `json:"id"`
	Timestamp     string  `json:"timestamp"`
	Kind          string  `json:"kind"`
	EndpointURL   string  `json:"endpointUrl"`
	HTTPMethod    string  `json:"httpMethod"`
	RemoteAddress string  `json:"remoteAddress"`
	RequestBody   string  `json:"requestBody"`
	ResponseBody  string  `json:"responseBody"`
	Detail        *string `json:"detail"`
}

type auditPageResponse struct {
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
	Data     []auditSummaryResponse `json:"data"`
}

func (h *Handler) queryLogs(w http.ResponseWriter, r *http.Request) {
	filter, msg := parseAuditFilter(r)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	page, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	data := make([]auditSummaryResponse, 0, len(page.Records))
	for _, rec := range page.Records {
		data = append(data, auditSummaryResponse{
			ID:              rec.ID,
			Timestamp:       rec.Timestamp.UTC().Format(timeFormat),
			Kind:            string(rec.Kind),
			EndpointURL:     rec.EndpointURL,
			HTTPMethod:      rec.HTTPMethod,
			RemoteAddress:   rec.RemoteAddress,
			RequestPreview:  domain.Preview(rec.RequestBody),
			ResponsePreview: domain.Preview(rec.ResponseBody),
			Detail:          rec.Detail,
		})
	}
	writeJSON(w, http.StatusOK, auditPageResponse{
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
		Data:     data,
	})
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "id must be integer")
		return
	}

	rec, err := h.audit.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auditRecordResponse{
		ID:            rec.ID,
		Timestamp:     rec.Timestamp.UTC().Format(timeFormat),
		Kind:          string(rec.Kind),
		EndpointURL:   rec.EndpointURL,
		HTTPMethod:    rec.HTTPMethod,
		RemoteAddress: rec.RemoteAddress,
		RequestBody:   rec.RequestBody,
		ResponseBody:  rec.ResponseBody,
		Detail:        rec.Detail,
	})
}

func parseAuditFilter(r *http.Request) (domain.AuditFilter, string) {
	q := r.URL.Query()
	var filter domain.AuditFilter

	kind, err := domain.ParseAuditKind(q.Get("kind"))
	if err != nil {
		return filter, "kind must be info or error"
	}
	filter.Kind = kind

	if raw := q.Get("fromUtc"); raw != "" {
		from, err := parseUTC(raw)
		if err != nil {
			return filter, "fromUtc must be an ISO-8601 timestamp"
		}
		filter.From = &from
	}
	if raw := q.Get("toUtc"); raw != "" {
		to, err := parseUTC(raw)
		if err != nil {
			return filter, "toUtc must be an ISO-8601 timestamp"
		}
		filter.To = &to
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return filter, "page must be integer"
		}
		filter.Page = page
	}
	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return filter, "pageSize must be integer"
		}
		filter.PageSize = size
	}

	filter.Method = q.Get("method")
	filter.Text = q.Get("q")
	return filter, ""
}

var utcLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// parseUTC accepts RFC 3339 and zone-less timestamps, which are read as UTC.
func parseUTC(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range utcLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
