package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type AuditKind string

const (
	AuditKindInfo  AuditKind = "info"
	AuditKindError AuditKind = "error"
)

// ParseAuditKind accepts any letter case; an empty string yields an empty kind.
func ParseAuditKind(raw string) (AuditKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case string(AuditKindInfo):
		return AuditKindInfo, nil
	case string(AuditKindError):
		return AuditKindError, nil
	default:
		return "", ErrInvalidFilter
	}
}

type AuditRecord struct {
	ID            int64
	Timestamp     time.Time
	Kind          AuditKind
	EndpointURL   string
	HTTPMethod    string
	RemoteAddress string
	RequestBody   string
	ResponseBody  string
	Detail        *string
}

type AuditFilter struct {
	Kind     AuditKind
	From     *time.Time
	To       *time.Time
	Method   string
	Text     string
	Page     int
	PageSize int
}

const (
	DefaultAuditPageSize = 50
	MaxAuditPageSize     = 500
)

func (f AuditFilter) Normalize() AuditFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultAuditPageSize
	}
	if f.PageSize > MaxAuditPageSize {
		f.PageSize = MaxAuditPageSize
	}
	f.Method = strings.ToUpper(strings.TrimSpace(f.Method))
	f.Text = strings.TrimSpace(f.Text)
	return f
}

func (f AuditFilter) Validate() error {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return ErrInvalidFilter
	}
	return nil
}

func (f AuditFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type AuditPage struct {
	Total    int64
	Page     int
	PageSize int
	Records  []AuditRecord
}

const (
	PreviewLength = 256
	previewMarker = "..."
)

// Preview keeps the first PreviewLength characters of s and marks the cut.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewLength]) + previewMarker
}
