package database

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/caresync/internal/entities"
	"github.com/mrlokans/caresync/internal/lifecycle"
)

// Store is the local entity store. Every write goes through Put, which runs the
// lifecycle hooks and commits atomically with them.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore creates a store on top of an open gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock returns a copy of the store that stamps records using now.
func (s *Store) WithClock(now func() time.Time) *Store {
	return &Store{db: s.db, now: now}
}

// DB exposes the underlying connection, bound to the current transaction if any.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn with a store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, now: s.now})
	})
}

// NewLocalID allocates a time-ordered local identifier.
func NewLocalID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Put inserts rec when it has no local id or no stored row, and updates it
// otherwise. It returns the record's local id.
func (s *Store) Put(ctx context.Context, rec entities.Entity, opts lifecycle.WriteOptions) (string, error) {
	info, ok := entities.LookupKind(rec.Kind())
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, rec.Kind())
	}

	meta := rec.Meta()
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if meta.LocalID != "" {
			prev := info.New()
			err := tx.Where("local_id = ?", meta.LocalID).First(prev).Error
			if err == nil {
				lifecycle.OnUpdate(meta, prev.Meta(), opts, now)
				return tx.Save(rec).Error
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		} else {
			meta.LocalID = NewLocalID()
		}

		lifecycle.OnCreate(meta, opts, now)
		return tx.Create(rec).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to put %s %s: %w", info.Kind, meta.LocalID, err)
	}

	return meta.LocalID, nil
}

// Get loads one entity by local id, including soft-deleted ones.
func (s *Store) Get(ctx context.Context, kind entities.Kind, localID string) (entities.Entity, error) {
	info, ok := entities.LookupKind(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	rec := info.New()
	err := s.db.WithContext(ctx).Where("local_id = ?", localID).First(rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, localID)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetAs is Get with the result asserted to the concrete entity type.
func GetAs[T entities.Entity](ctx context.Context, s *Store, kind entities.Kind, localID string) (T, error) {
	var zero T
	rec, err := s.Get(ctx, kind, localID)
	if err != nil {
		return zero, err
	}
	typed, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%s %s has type %T", kind, localID, rec)
	}
	return typed, nil
}

// Filter narrows a Query. The zero value lists every live record.
type Filter struct {
	// IncludeDeleted also yields soft-deleted records.
	IncludeDeleted bool

	// Synced, when set, keeps only records with that synced flag.
	Synced *bool

	// ParentLocalID keeps only children of the given parent.
	ParentLocalID string

	// Match is applied after the SQL filters.
	Match func(entities.Entity) bool
}

// Query streams entities of one kind ordered by creation. The sequence reads
// rows lazily and re-runs the query every time it is ranged over.
func (s *Store) Query(ctx context.Context, kind entities.Kind, f Filter) iter.Seq2[entities.Entity, error] {
	return func(yield func(entities.Entity, error) bool) {
		info, ok := entities.LookupKind(kind)
		if !ok {
			yield(nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind))
			return
		}

		q := s.db.WithContext(ctx).Model(info.New())
		if !f.IncludeDeleted {
			q = q.Where("deleted = ?", false)
		}
		if f.Synced != nil {
			q = q.Where("synced = ?", *f.Synced)
		}
		if f.ParentLocalID != "" {
			if info.ParentColumn == "" {
				yield(nil, fmt.Errorf("%s has no parent", kind))
				return
			}
			q = q.Where(info.ParentColumn+" = ?", f.ParentLocalID)
		}

		rows, err := q.Order("created_at ASC, local_id ASC").Rows()
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			rec := info.New()
			if err := s.db.ScanRows(rows, rec); err != nil {
				yield(nil, err)
				return
			}
			if f.Match != nil && !f.Match(rec) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// Collect drains a query into a typed slice.
func Collect[T entities.Entity](seq iter.Seq2[entities.Entity, error]) ([]T, error) {
	var out []T
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		typed, ok := rec.(T)
		if !ok {
			return nil, fmt.Errorf("unexpected entity type %T", rec)
		}
		out = append(out, typed)
	}
	return out, nil
}

// Remove hard-deletes an entity. Only the sync engine calls this, after the
// remote service acknowledged the deletion.
func (s *Store) Remove(ctx context.Context, kind entities.Kind, localID string) error {
	info, ok := entities.LookupKind(kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return s.db.WithContext(ctx).Where("local_id = ?", localID).Delete(info.New()).Error
}
