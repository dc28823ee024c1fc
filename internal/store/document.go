package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/roach88/tipsync/internal/tip"
)

// Version identifies the record layout written by this build. A document
// written under any other version is not loaded.
const Version = "tipsync/1"

var (
	// ErrEmpty means nothing has been saved yet.
	ErrEmpty = errors.New("store: no saved document")

	// ErrVersionMismatch means the saved document was written under a
	// different version string.
	ErrVersionMismatch = errors.New("store: document version mismatch")
)

const (
	metaVersion = "version"
	metaCycle   = "cycle"
)

// Document is the complete persisted state.
type Document struct {
	Version string
	// Cycle is the reconciliation cycle that produced the document.
	Cycle int64
	Tips  map[string]tip.Record
}

// NewDocument builds a current-version document from records.
func NewDocument(cycle int64, records []tip.Record) Document {
	doc := Document{
		Version: Version,
		Cycle:   cycle,
		Tips:    make(map[string]tip.Record, len(records)),
	}
	for _, r := range records {
		doc.Tips[r.ID] = r
	}
	return doc
}

// Records returns the document's tips ordered by creation time then id.
func (d Document) Records() []tip.Record {
	out := make([]tip.Record, 0, len(d.Tips))
	for _, r := range d.Tips {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Load reads the saved document.
//
// Returns ErrEmpty if nothing was ever saved and ErrVersionMismatch if the
// document was written under another version. In the mismatch case the
// returned Document carries the stale version and no tips; use IDs to list
// what it held.
func (s *Store) Load(ctx context.Context) (Document, error) {
	version, ok, err := s.meta(ctx, metaVersion)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, ErrEmpty
	}
	if version != Version {
		return Document{Version: version}, fmt.Errorf("%w: have %q, want %q", ErrVersionMismatch, version, Version)
	}

	doc := Document{Version: version, Tips: make(map[string]tip.Record)}
	if raw, ok, err := s.meta(ctx, metaCycle); err != nil {
		return Document{}, err
	} else if ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Document{}, fmt.Errorf("parse cycle %q: %w", raw, err)
		}
		doc.Cycle = n
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record FROM tips
		ORDER BY created_at ASC, id ASC COLLATE BINARY
	`)
	if err != nil {
		return Document{}, fmt.Errorf("query tips: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return Document{}, fmt.Errorf("scan tip: %w", err)
		}
		var rec tip.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Document{}, fmt.Errorf("decode tip %s: %w", id, err)
		}
		doc.Tips[id] = rec
	}
	if err := rows.Err(); err != nil {
		return Document{}, fmt.Errorf("iterate tips: %w", err)
	}
	return doc, nil
}

// IDs lists every saved tip id regardless of document version.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tips ORDER BY id ASC COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("query tip ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tip id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save replaces the saved document with doc in a single transaction.
func (s *Store) Save(ctx context.Context, doc Document) error {
	if doc.Version == "" {
		doc.Version = Version
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tips`); err != nil {
		return fmt.Errorf("clear tips: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tips (id, reference, created_at, record)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare tip insert: %w", err)
	}
	defer stmt.Close()

	for id, rec := range doc.Tips {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode tip %s: %w", id, err)
		}
		createdAt := rec.CreatedAt.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, id, rec.Reference, createdAt, string(raw)); err != nil {
			return fmt.Errorf("insert tip %s: %w", id, err)
		}
	}

	if err := setMeta(ctx, tx, metaVersion, doc.Version); err != nil {
		return err
	}
	if err := setMeta(ctx, tx, metaCycle, strconv.FormatInt(doc.Cycle, 10)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *Store) meta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, true, nil
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}
