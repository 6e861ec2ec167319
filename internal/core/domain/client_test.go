package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateClientID(t *testing.T) {
	valid := []string{"1", "abc", "A.b_c-9", strings.Repeat("x", 20)}
	for _, id := range valid {
		if err := ValidateClientID(id); err != nil {
			t.Fatalf("expected %q to be valid, got %v", id, err)
		}
	}
	invalid := []string{"", ".", "..", "../x", "a/b", `a\b`, "-a", strings.Repeat("x", 21), "a b"}
	for _, id := range invalid {
		if err := ValidateClientID(id); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected %q to be invalid, got %v", id, err)
		}
	}
}

func TestClientValidateCollectsFields(t *testing.T) {
	err := Client{ID: "1", Names: " ", Address: strings.Repeat("a", 201), Phone: "1"}.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Fields) != 2 || verr.Fields["names"] == nil || verr.Fields["address"] == nil {
		t.Fatalf("unexpected fields: %v", verr.Fields)
	}
	if !IsValidation(err) {
		t.Fatalf("validation error must map to the 400 family")
	}
}

func TestClientUpdateApplyKeepsNilPhotos(t *testing.T) {
	p1, p2 := "/p1.png", "/p2.png"
	c := Client{ID: "1", Names: "a", Address: "b", Phone: "c", Photo1URL: &p1}
	got := ClientUpdate{Names: "x", Address: "y", Phone: "z", Photo2URL: &p2}.Apply(c)

	if got.ID != "1" || got.Names != "x" || got.Address != "y" || got.Phone != "z" {
		t.Fatalf("unexpected fields: %+v", got)
	}
	if got.Photo1URL != &p1 || got.Photo2URL != &p2 || got.Photo3URL != nil {
		t.Fatalf("unexpected photos: %+v", got)
	}
}
