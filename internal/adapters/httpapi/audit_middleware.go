package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

const (
	DefaultAuditBodyCap = 1 << 20
	// auditPersistTimeout bounds how long a stuck store can hold back a response.
	auditPersistTimeout = 2 * time.Second
)

// AuditRecorder persists one audit record per exchange.
type AuditRecorder interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
}

type exchangeCtxKey struct{}

// exchange is the per-request state shared between the audit middleware and
// the handlers below it.
type exchange struct {
	traceID string

	mu    sync.Mutex
	fault error
}

func (e *exchange) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fault == nil {
		e.fault = err
	}
}

func (e *exchange) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fault
}

// Fail reports an internal error for the current request. The audit
// middleware discards whatever the handler wrote and answers with the generic
// 500 payload. It returns false when no audit middleware is in the chain.
func Fail(ctx context.Context, err error) bool {
	ex, ok := ctx.Value(exchangeCtxKey{}).(*exchange)
	if !ok {
		return false
	}
	ex.fail(err)
	return true
}

// TraceID returns the id the audit middleware assigned to the request.
func TraceID(ctx context.Context) string {
	if ex, ok := ctx.Value(exchangeCtxKey{}).(*exchange); ok {
		return ex.traceID
	}
	return middleware.GetReqID(ctx)
}

type outcome struct {
	fault      bool
	diagnostic string
	abort      bool
}

type faultBody struct {
	Status  int    `json:"status"`
	Title   string `json:"title"`
	TraceID string `json:"traceId"`
}

// Audit buffers every exchange, records it through recorder and then writes
// the buffered response to the client. Handler panics and errors reported
// with Fail are turned into an opaque 500 whose diagnostic only reaches the
// audit record. Persistence failures are logged and never change the response.
func Audit(recorder AuditRecorder, logger *slog.Logger, bodyCap int) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if bodyCap <= 0 {
		bodyCap = DefaultAuditBodyCap
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := middleware.GetReqID(r.Context())
			if traceID == "" {
				traceID = uuid.NewString()
			}
			ex := &exchange{traceID: traceID}
			r = r.WithContext(context.WithValue(r.Context(), exchangeCtxKey{}, ex))

			requestSnapshot := snapshotRequestBody(r, bodyCap)

			rec := newResponseRecorder(w)
			out := invoke(next, rec, r, ex)

			kind := domain.AuditKindInfo
			var detail *string
			switch {
			case out.fault:
				kind = domain.AuditKindError
				detail = &out.diagnostic
				rec.replaceWithFault(traceID)
			case r.Context().Err() != nil:
				kind = domain.AuditKindError
				msg := fmt.Sprintf("request aborted by caller: %v", r.Context().Err())
				detail = &msg
			}

			persist(r, recorder, logger, domain.AuditRecord{
				Timestamp:     time.Now().UTC(),
				Kind:          kind,
				EndpointURL:   requestURL(r),
				HTTPMethod:    r.Method,
				RemoteAddress: remoteAddress(r),
				RequestBody:   requestSnapshot,
				ResponseBody:  sanitizeText(capBytes(rec.body.Bytes(), bodyCap)),
				Detail:        detail,
			})

			if out.abort {
				panic(http.ErrAbortHandler)
			}
			rec.flushTo(w)
		})
	}
}

func invoke(next http.Handler, w http.ResponseWriter, r *http.Request, ex *exchange) (out outcome) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		if v == http.ErrAbortHandler {
			out = outcome{fault: true, abort: true, diagnostic: "handler aborted the response"}
			return
		}
		out = outcome{fault: true, diagnostic: fmt.Sprintf("panic: %v\n\n%s", v, debug.Stack())}
	}()

	next.ServeHTTP(w, r)

	if err := ex.err(); err != nil {
		return outcome{fault: true, diagnostic: fmt.Sprintf("%+v", err)}
	}
	return outcome{}
}

func persist(r *http.Request, recorder AuditRecorder, logger *slog.Logger, rec domain.AuditRecord) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditPersistTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("audit recorder panic: %v", v)
			}
		}()
		return recorder.Record(ctx, rec)
	}()
	if err != nil {
		logger.Error("persist audit record",
			"trace_id", TraceID(r.Context()),
			"method", rec.HTTPMethod,
			"url", rec.EndpointURL,
			"kind", rec.Kind,
			"error", err,
		)
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}

type errReader struct {
	err error
}

func (e errReader) Read([]byte) (int, error) {
	return 0, e.err
}

// snapshotRequestBody reads up to limit bytes for the audit record and hands
// the handler a body that replays them ahead of the unread remainder.
func snapshotRequestBody(r *http.Request, limit int) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	var prefix bytes.Buffer
	_, err := io.CopyN(&prefix, r.Body, int64(limit))

	rest := io.Reader(r.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		rest = errReader{err: err}
	}
	r.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(prefix.Bytes()), rest),
		Closer: r.Body,
	}
	return sanitizeText(prefix.Bytes())
}

// responseRecorder holds the whole response until the audit record is built.
type responseRecorder struct {
	w           http.ResponseWriter
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{w: w, header: make(http.Header), status: http.StatusOK}
}

func (rr *responseRecorder) Header() http.Header {
	return rr.header
}

func (rr *responseRecorder) WriteHeader(status int) {
	if rr.wroteHeader {
		return
	}
	rr.wroteHeader = true
	rr.status = status
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	return rr.body.Write(p)
}

// Flush is a no-op; output is released once the exchange is recorded.
func (rr *responseRecorder) Flush() {}

func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.w
}

func (rr *responseRecorder) replaceWithFault(traceID string) {
	body, _ := json.Marshal(faultBody{
		Status:  http.StatusInternalServerError,
		Title:   "internal server error",
		TraceID: traceID,
	})
	rr.header = make(http.Header)
	rr.header.Set("Content-Type", "application/json")
	rr.status = http.StatusInternalServerError
	rr.wroteHeader = true
	rr.body.Reset()
	rr.body.Write(body)
}

func (rr *responseRecorder) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for k, v := range rr.header {
		dst[k] = v
	}
	w.WriteHeader(rr.status)
	if rr.body.Len() > 0 {
		_, _ = w.Write(rr.body.Bytes())
	}
}

func capBytes(b []byte, limit int) []byte {
	if len(b) > limit {
		return b[:limit]
	}
	return b
}

// sanitizeText makes captured bytes storable as text in any backend.
func sanitizeText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "\uFFFD")
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func remoteAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
