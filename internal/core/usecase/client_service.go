package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/atvirokodosprendimai/clientvault/internal/core/domain"
	"github.com/atvirokodosprendimai/clientvault/internal/core/ports"
)

// PhotoSlots are the photo fields a client may carry, in storage order.
var PhotoSlots = []string{"photo1", "photo2", "photo3"}

type PhotoUpload struct {
	Slot     string
	FileName string
	Content  io.Reader
}

type ClientService struct {
	repo      ports.ClientRepository
	photos    ports.PhotoStore
	validator *PayloadValidator
}

func NewClientService(repo ports.ClientRepository, photos ports.PhotoStore, validator *PayloadValidator) *ClientService {
	return &ClientService{repo: repo, photos: photos, validator: validator}
}

// Create registers a new client. Duplicates are rejected before any photo is written.
func (s *ClientService) Create(ctx context.Context, c domain.Client, photos []PhotoUpload) (domain.Client, error) {
	payload, err := json.Marshal(map[string]string{
		"ci":      c.ID,
		"names":   c.Names,
		"address": c.Address,
		"phone":   c.Phone,
	})
	if err != nil {
		return domain.Client{}, fmt.Errorf("encode client payload: %w", err)
	}
	if err := s.validator.Validate(SchemaClientCreate, payload); err != nil {
		return domain.Client{}, err
	}
	if err := c.Validate(); err != nil {
		return domain.Client{}, err
	}

	exists, err := s.repo.Exists(ctx, c.ID)
	if err != nil {
		return domain.Client{}, err
	}
	if exists {
		return domain.Client{}, fmt.Errorf("client %s already exists: %w", c.ID, domain.ErrConflict)
	}

	for _, p := range photos {
		url, err := s.photos.SavePhoto(ctx, c.ID, p.Slot, p.FileName, p.Content)
		if err != nil {
			return domain.Client{}, fmt.Errorf("save %s: %w", p.Slot, err)
		}
		switch p.Slot {
		case PhotoSlots[0]:
			c.Photo1URL = &url
		case PhotoSlots[1]:
			c.Photo2URL = &url
		case PhotoSlots[2]:
			c.Photo3URL = &url
		}
	}

	return s.repo.Create(ctx, c)
}

func (s *ClientService) Get(ctx context.Context, id string) (domain.Client, error) {
	if err := domain.ValidateClientID(id); err != nil {
		return domain.Client{}, domain.ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

func (s *ClientService) List(ctx context.Context) ([]domain.Client, error) {
	return s.repo.List(ctx)
}

type clientUpdatePayload struct {
	Names     string  `json:"names"`
	Address   string  `json:"address"`
	Phone     string  `json:"phone"`
	Photo1URL *string `json:"photo1Url"`
	Photo2URL *string `json:"photo2Url"`
	Photo3URL *string `json:"photo3Url"`
}

// Update applies a JSON update document to an existing client.
func (s *ClientService) Update(ctx context.Context, id string, payload json.RawMessage) (domain.Client, error) {
	if err := domain.ValidateClientID(id); err != nil {
		return domain.Client{}, domain.ErrNotFound
	}
	if err := s.validator.Validate(SchemaClientUpdate, payload); err != nil {
		return domain.Client{}, err
	}

	var req clientUpdatePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return domain.Client{}, fmt.Errorf("decode client update: %w", err)
	}
	upd := domain.ClientUpdate{
		Names:     req.Names,
		Address:   req.Address,
		Phone:     req.Phone,
		Photo1URL: req.Photo1URL,
		Photo2URL: req.Photo2URL,
		Photo3URL: req.Photo3URL,
	}
	if err := upd.Apply(domain.Client{ID: id}).Validate(); err != nil {
		return domain.Client{}, err
	}

	return s.repo.Update(ctx, id, upd.Apply)
}

func (s *ClientService) Delete(ctx context.Context, id string) (bool, error) {
	if err := domain.ValidateClientID(id); err != nil {
		return false, nil
	}
	return s.repo.Delete(ctx, id)
}
