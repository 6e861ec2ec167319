package usecase

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

const (
	SchemaClientCreate = "client_create"
	SchemaClientUpdate = "client_update"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// PayloadValidator validates JSON payloads against the embedded schemas.
type PayloadValidator struct {
	cache sync.Map // key: schema name → *santhosh.Schema
}

func NewPayloadValidator() *PayloadValidator {
	return &PayloadValidator{}
}

// Validate checks data against the named schema. Returns *domain.ValidationError
// when the payload does not conform.
func (v *PayloadValidator) Validate(name string, data json.RawMessage) error {
	compiled, err := v.load(name)
	if err != nil {
		return err
	}
	return runValidation(compiled, data)
}

func (v *PayloadValidator) load(name string) (*santhosh.Schema, error) {
	if cached, ok := v.cache.Load(name); ok {
		return cached.(*santhosh.Schema), nil
	}
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	compiled, err := compileSchema(name, raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.cache.Store(name, compiled)
	return compiled, nil
}

func compileSchema(name string, schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func runValidation(sch *santhosh.Schema, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		verr := &domain.ValidationError{}
		verr.Add("body", "must be valid json")
		return verr
	}
	if err := sch.Validate(v); err != nil {
		verr := &domain.ValidationError{}
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			collectValidationErrors(verr, ve)
			return verr
		}
		verr.Add("body", err.Error())
		return verr
	}
	return nil
}

func collectValidationErrors(verr *domain.ValidationError, ve *santhosh.ValidationError) {
	for _, cause := range ve.Causes {
		collectValidationErrors(verr, cause)
	}
	if len(ve.Causes) == 0 {
		verr.Add(fieldFromLocation(ve.InstanceLocation), ve.Message)
	}
}

// fieldFromLocation turns a JSON pointer like "/names" into "names".
func fieldFromLocation(loc string) string {
	field := strings.TrimPrefix(loc, "/")
	if field == "" {
		return "body"
	}
	return strings.ReplaceAll(field, "/", ".")
}
