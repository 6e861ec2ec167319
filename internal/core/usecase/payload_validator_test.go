package usecase

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

func TestPayloadValidatorAcceptsValidClient(t *testing.T) {
	v := NewPayloadValidator()
	err := v.Validate(SchemaClientCreate, json.RawMessage(`{"ci":"A-1","names":"Ana","address":"Road","phone":"123"}`))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestPayloadValidatorReportsFieldPaths(t *testing.T) {
	v := NewPayloadValidator()
	err := v.Validate(SchemaClientCreate, json.RawMessage(`{"ci":"../x","names":"","address":"Road","phone":"1"}`))

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"ci", "names"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected %s in %v", field, verr.Fields)
		}
	}
}

func TestPayloadValidatorRejectsUnknownFieldsAndBadJSON(t *testing.T) {
	v := NewPayloadValidator()
	if err := v.Validate(SchemaClientUpdate, json.RawMessage(`{"names":"a","address":"b","phone":"c","extra":1}`)); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for extra field, got %v", err)
	}
	if err := v.Validate(SchemaClientUpdate, json.RawMessage(`{`)); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for bad json, got %v", err)
	}
}

func TestPayloadValidatorUnknownSchema(t *testing.T) {
	err := NewPayloadValidator().Validate("nope", json.RawMessage(`{}`))
	if err == nil || domain.IsValidation(err) {
		t.Fatalf("unknown schema must be an internal error, got %v", err)
	}
}

func TestFieldFromLocation(t *testing.T) {
	cases := map[string]string{"": "body", "/names": "names", "/a/b": "a.b"}
	for in, want := range cases {
		if got := fieldFromLocation(in); got != want {
			t.Fatalf("fieldFromLocation(%q) = %q, want %q", in, got, want)
		}
	}
}
