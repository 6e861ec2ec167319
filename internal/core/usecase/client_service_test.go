package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
)

type photoStoreStub struct {
	saved []string
}

func (s *photoStoreStub) SavePhoto(_ context.Context, clientID, slot, originalName string, content io.Reader) (string, error) {
	if _, err := io.ReadAll(content); err != nil {
		return "", err
	}
	url := "/uploads/clients/" + clientID + "/" + slot + "_" + originalName
	s.saved = append(s.saved, url)
	return url, nil
}

func TestClientServiceCreateStoresPhotos(t *testing.T) {
	repo := newMemClientRepo()
	photos := &photoStoreStub{}
	svc := NewClientService(repo, photos, NewPayloadValidator())

	created, err := svc.Create(context.Background(), domain.Client{ID: "10", Names: "Ana", Address: "Road", Phone: "1"}, []PhotoUpload{
		{Slot: "photo1", FileName: "a.png", Content: strings.NewReader("a")},
		{Slot: "photo3", FileName: "c.png", Content: strings.NewReader("c")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Photo1URL == nil || created.Photo2URL != nil || created.Photo3URL == nil {
		t.Fatalf("unexpected photo slots: %+v", created)
	}
	if len(photos.saved) != 2 {
		t.Fatalf("expected 2 saved photos, got %d", len(photos.saved))
	}
}

func TestClientServiceCreateRejectsDuplicateBeforeWritingPhotos(t *testing.T) {
	repo := newMemClientRepo("10")
	photos := &photoStoreStub{}
	svc := NewClientService(repo, photos, NewPayloadValidator())

	_, err := svc.Create(context.Background(), domain.Client{ID: "10", Names: "Ana", Address: "Road", Phone: "1"}, []PhotoUpload{
		{Slot: "photo1", FileName: "a.png", Content: strings.NewReader("a")},
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(photos.saved) != 0 {
		t.Fatalf("photos must not be written for duplicates, got %v", photos.saved)
	}
}

func TestClientServiceCreateValidatesFields(t *testing.T) {
	svc := NewClientService(newMemClientRepo(), &photoStoreStub{}, NewPayloadValidator())

	_, err := svc.Create(context.Background(), domain.Client{ID: "this-id-is-way-too-long-for-ci", Names: "", Address: "a", Phone: "1"}, nil)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["ci"]; !ok {
		t.Fatalf("expected ci field error, got %v", verr.Fields)
	}
	if _, ok := verr.Fields["names"]; !ok {
		t.Fatalf("expected names field error, got %v", verr.Fields)
	}
}

func TestClientServiceUpdateKeepsUnsetPhotos(t *testing.T) {
	repo := newMemClientRepo()
	photo := "/uploads/clients/10/photo1_a.png"
	repo.clients["10"] = domain.Client{ID: "10", Names: "Ana", Address: "Road", Phone: "1", Photo1URL: &photo}
	svc := NewClientService(repo, &photoStoreStub{}, NewPayloadValidator())

	updated, err := svc.Update(context.Background(), "10", json.RawMessage(`{"names":"Ana B","address":"Road 2","phone":"2","photo2Url":"/x.png"}`))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Names != "Ana B" || updated.Photo1URL == nil || *updated.Photo1URL != photo {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if updated.Photo2URL == nil || *updated.Photo2URL != "/x.png" {
		t.Fatalf("expected photo2 to be set, got %v", updated.Photo2URL)
	}
}

func TestClientServiceUpdateErrors(t *testing.T) {
	svc := NewClientService(newMemClientRepo("10"), &photoStoreStub{}, NewPayloadValidator())

	if _, err := svc.Update(context.Background(), "10", json.RawMessage(`{"names":"A"}`)); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for missing fields, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "10", json.RawMessage(`not json`)); !domain.IsValidation(err) {
		t.Fatalf("expected validation error for bad json, got %v", err)
	}
	if _, err := svc.Update(context.Background(), "77", json.RawMessage(`{"names":"A","address":"B","phone":"C"}`)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientServiceInvalidIDsAreNotFound(t *testing.T) {
	svc := NewClientService(newMemClientRepo(), &photoStoreStub{}, NewPayloadValidator())

	if _, err := svc.Get(context.Background(), "../x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	deleted, err := svc.Delete(context.Background(), "../x")
	if err != nil || deleted {
		t.Fatalf("expected no-op delete, got deleted=%v err=%v", deleted, err)
	}
}
