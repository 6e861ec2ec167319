package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/usecase"
)

const (
	timeFormat            = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize       = 1 << 20
	maxMultipartMemory    = 32 << 20
	DefaultMaxUploadBytes = 512 << 20
)

type Options struct {
	// PublicRoot is the directory whose uploads/ tree is served under /uploads.
	PublicRoot     string
	MaxUploadBytes int64
	AuditBodyCap   int
	// ProtectLogs requires an API key on /api/logs.
	ProtectLogs bool
	Ping        func(ctx context.Context) error
	Logger      *slog.Logger
}

type Handler struct {
	clients *usecase.ClientService
	ingest  *usecase.IngestService
	audit   *usecase.AuditService
	access  *usecase.LogAccessService
	opts    Options
	logger  *slog.Logger
}

func NewHandler(clients *usecase.ClientService, ingest *usecase.IngestService, audit *usecase.AuditService, access *usecase.LogAccessService, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.AuditBodyCap <= 0 {
		opts.AuditBodyCap = DefaultAuditBodyCap
	}
	return &Handler{clients: clients, ingest: ingest, audit: audit, access: access, opts: opts, logger: opts.Logger}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	if h.opts.PublicRoot != "" {
		uploads := http.FileServer(noDirFS{http.Dir(filepath.Join(h.opts.PublicRoot, "uploads"))})
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", uploads))
	}
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))

	r.Group(func(ar chi.Router) {
		ar.Use(Audit(h.audit, h.logger, h.opts.AuditBodyCap))

		ar.Get("/healthz", h.healthz)
		ar.Get("/openapi.json", h.openapi)

		ar.Route("/api", func(api chi.Router) {
			api.Get("/clients", h.listClients)
			api.Post("/clients", h.createClient)
			api.Get("/clients/{ci}", h.getClient)
			api.Put("/clients/{ci}", h.updateClient)
			api.Delete("/clients/{ci}", h.deleteClient)

			api.Post("/files/upload-zip", h.uploadZip)
			api.Get("/files/{clientId}", h.listFiles)

			api.Group(func(lr chi.Router) {
				if h.opts.ProtectLogs {
					lr.Use(h.requireAPIKey)
				}
				lr.Get("/logs", h.queryLogs)
				lr.Get("/logs/{id}", h.getLog)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ping != nil {
		if err := h.opts.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		if _, err := h.access.Authorize(r.Context(), token); err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			handleDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode json response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// handleDomainError answers client-side failures directly. Anything else is
// an internal fault and is handed to the audit middleware.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "details": verr.Fields})
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		if !Fail(r.Context(), err) {
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

// noDirFS hides directory listings from the static file server.
type noDirFS struct {
	fs http.FileSystem
}

func (n noDirFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
