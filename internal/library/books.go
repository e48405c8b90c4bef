package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yuanying/audiobook/internal/audiobook"
	"github.com/yuanying/audiobook/internal/drm"
)

// ErrNotFound reports an id with no catalog entry.
var ErrNotFound = errors.New("audiobook not found")

// Entry is one catalog row.
type Entry struct {
	ID        string
	Title     string
	Author    string
	Kind      audiobook.Kind
	DRMStatus drm.Status
	Tracks    int
	Duration  time.Duration
	Manifest  []byte
	// Nav is an optional HTML navigation document supplying the table of contents.
	Nav []byte
	// Token is the bearer token the book was opened with; empty falls back to the configured one.
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EntryFor summarizes an opened book. The manifest bytes are the ones it was decoded from.
func EntryFor(b *audiobook.Audiobook) Entry {
	doc := b.Manifest()
	return Entry{
		ID:        b.ID(),
		Title:     doc.Metadata.Title,
		Author:    doc.Metadata.Author.Name,
		Kind:      b.Kind(),
		DRMStatus: b.DRMStatus(),
		Tracks:    b.Spine().Len(),
		Duration:  b.Spine().Duration(),
		Manifest:  doc.Raw,
	}
}

const bookColumns = "id, title, author, kind, drm_status, tracks, duration_ms, manifest, nav, token, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		e          Entry
		kind       string
		status     string
		durationMS int64
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&e.ID, &e.Title, &e.Author, &kind, &status, &e.Tracks, &durationMS,
		&e.Manifest, &e.Nav, &e.Token, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	var err error
	if e.Kind, err = audiobook.ParseKind(kind); err != nil {
		return nil, err
	}
	if e.DRMStatus, err = drm.ParseStatus(status); err != nil {
		return nil, err
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &e, nil
}

// Put inserts or replaces the entry for e.ID. CreatedAt is kept for existing entries.
func (s *Store) Put(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return errors.New("put: empty id")
	}
	if len(e.Manifest) == 0 {
		return fmt.Errorf("put %s: empty manifest", e.ID)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.exec(ctx, `INSERT INTO books (`+bookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			kind = excluded.kind,
			drm_status = excluded.drm_status,
			tracks = excluded.tracks,
			duration_ms = excluded.duration_ms,
			manifest = excluded.manifest,
			nav = excluded.nav,
			token = excluded.token,
			updated_at = excluded.updated_at`,
		e.ID, e.Title, e.Author, e.Kind.String(), e.DRMStatus.String(), e.Tracks,
		e.Duration.Milliseconds(), e.Manifest, e.Nav, e.Token, now, now)
	if err != nil {
		return fmt.Errorf("put %s: %w", e.ID, err)
	}
	return nil
}

// Get returns the entry for id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return e, nil
}

// List returns every entry ordered by title, then id.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+bookColumns+" FROM books ORDER BY title, id")
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return entries, nil
}

// SetDRMStatus records the last known DRM status of id.
func (s *Store) SetDRMStatus(ctx context.Context, id string, status drm.Status) error {
	res, err := s.exec(ctx, "UPDATE books SET drm_status = ?, updated_at = ? WHERE id = ?",
		status.String(), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set drm status of %s: %w", id, err)
	}
	return expectOne(res, id)
}

// Delete removes the entry for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
