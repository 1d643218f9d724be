// Package snapshot persists resolved products so callers can fetch them again
// by id, and announces each resolution through the event outbox.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maltedev/product-resolver/internal/models"
)

const (
	StatusPending  = "pending"
	StatusResolved = "resolved"

	// DefaultCurrency is stored when the resolver found no currency.
	DefaultCurrency = "GBP"

	AggregateType = "product_snapshot"
	EventResolved = "PRODUCT_SNAPSHOT_RESOLVED"
)

var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrInvalidProduct = errors.New("invalid resolved product")
)

// Snapshot is the stored form of a resolved product.
type Snapshot struct {
	ID        uuid.UUID       `json:"id"`
	URL       string          `json:"url"`
	Title     string          `json:"title"`
	ImageURL  *string         `json:"imageUrl"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Status    string          `json:"status"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Store is implemented by the postgres and file backends.
type Store interface {
	Create(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	UpdateResolved(ctx context.Context, id uuid.UUID, p *models.ResolvedProduct) (*Snapshot, error)
}

// FromProduct builds a resolved snapshot for rawURL.
func FromProduct(rawURL string, p *models.ResolvedProduct) (*Snapshot, error) {
	now := time.Now().UTC()
	s := &Snapshot{
		ID:        uuid.New(),
		URL:       rawURL,
		CreatedAt: now,
	}
	if err := s.apply(p, now); err != nil {
		return nil, err
	}
	return s, nil
}

// Placeholder builds a pending snapshot titled with the URL's host, stored
// before an asynchronous resolution runs.
func Placeholder(u *url.URL, rawURL string) *Snapshot {
	now := time.Now().UTC()
	title := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if title == "" {
		title = rawURL
	}
	return &Snapshot{
		ID:        uuid.New(),
		URL:       rawURL,
		Title:     title,
		Price:     decimal.Zero,
		Currency:  DefaultCurrency,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// apply copies the resolved fields of p onto s and marks it resolved.
func (s *Snapshot) apply(p *models.ResolvedProduct, now time.Time) error {
	if p == nil {
		return ErrInvalidProduct
	}

	raw, err := json.Marshal(p.Raw)
	if err != nil {
		return fmt.Errorf("failed to marshal raw trace: %w", err)
	}

	s.Title = p.Title
	s.ImageURL = p.ImageURL
	s.Price = decimal.Zero
	if p.Price != nil {
		s.Price = decimal.NewFromFloat(*p.Price).Round(2)
	}
	s.Currency = DefaultCurrency
	if p.Currency != nil && *p.Currency != "" {
		s.Currency = *p.Currency
	}
	s.Status = StatusResolved
	s.Raw = raw
	s.UpdatedAt = now
	return nil
}

func (s *Snapshot) clone() *Snapshot {
	c := *s
	if s.ImageURL != nil {
		img := *s.ImageURL
		c.ImageURL = &img
	}
	if s.Raw != nil {
		c.Raw = append(json.RawMessage(nil), s.Raw...)
	}
	return &c
}

// ResolvedEvent is the outbox payload announcing a resolution.
type ResolvedEvent struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	ImageURL   *string `json:"imageUrl"`
	Price      string  `json:"price"`
	Currency   string  `json:"currency"`
	ResolvedAt string  `json:"resolvedAt"`
}

func NewResolvedEvent(s *Snapshot) ResolvedEvent {
	return ResolvedEvent{
		ID:         s.ID.String(),
		URL:        s.URL,
		Title:      s.Title,
		ImageURL:   s.ImageURL,
		Price:      s.Price.StringFixed(2),
		Currency:   s.Currency,
		ResolvedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}
