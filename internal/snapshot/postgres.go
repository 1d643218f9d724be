package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/product-resolver/internal/database"
	"github.com/maltedev/product-resolver/internal/models"
)

const selectColumns = `
	id, url, title, image_url, price, currency, status, raw, created_at, updated_at`

type row interface {
	Scan(dest ...any) error
}

// PostgresStore keeps snapshots in the product_snapshot table. When an outbox
// repository is configured every resolution also records an event in the same
// transaction.
type PostgresStore struct {
	db     *database.DB
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewPostgresStore(db *database.DB, outbox *database.OutboxRepository, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		outbox: outbox,
		logger: logger.With("component", "snapshot_store"),
	}
}

func (s *PostgresStore) Create(ctx context.Context, snap *Snapshot) error {
	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO product_snapshot (`+selectColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			snap.ID, snap.URL, snap.Title, snap.ImageURL, snap.Price,
			snap.Currency, snap.Status, snap.Raw, snap.CreatedAt, snap.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		if snap.Status == StatusResolved {
			return s.recordResolved(ctx, tx, snap)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("snapshot created", "id", snap.ID, "status", snap.Status)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	snap, err := scanSnapshot(s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM product_snapshot WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// UpdateResolved locks the row, overwrites it with p and records the event.
func (s *PostgresStore) UpdateResolved(ctx context.Context, id uuid.UUID, p *models.ResolvedProduct) (*Snapshot, error) {
	var updated *Snapshot

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		snap, err := scanSnapshot(tx.QueryRow(ctx,
			`SELECT `+selectColumns+` FROM product_snapshot WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock snapshot: %w", err)
		}

		if err := snap.apply(p, time.Now().UTC()); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE product_snapshot
			SET title = $1, image_url = $2, price = $3, currency = $4,
				status = $5, raw = $6, updated_at = $7
			WHERE id = $8`,
			snap.Title, snap.ImageURL, snap.Price, snap.Currency,
			snap.Status, snap.Raw, snap.UpdatedAt, snap.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update snapshot: %w", err)
		}

		if err := s.recordResolved(ctx, tx, snap); err != nil {
			return err
		}

		updated = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("snapshot resolved", "id", id)
	return updated, nil
}

func (s *PostgresStore) recordResolved(ctx context.Context, tx pgx.Tx, snap *Snapshot) error {
	if s.outbox == nil {
		return nil
	}

	event, err := database.NewEvent(AggregateType, snap.ID.String(), EventResolved, NewResolvedEvent(snap))
	if err != nil {
		return err
	}
	if err := s.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to record resolved event: %w", err)
	}
	return nil
}

func scanSnapshot(r row) (*Snapshot, error) {
	var snap Snapshot
	var raw []byte
	err := r.Scan(
		&snap.ID, &snap.URL, &snap.Title, &snap.ImageURL, &snap.Price,
		&snap.Currency, &snap.Status, &raw, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.Raw = raw
	return &snap, nil
}
