package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/entitybridge/internal/ir"
)

// querier is the subset of *sql.DB and *sql.Tx used by the readers.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const entityColumns = `id, type, content_type_id, version, published_version, archived_version, deleted_version, fields`

// Import inserts or replaces an entity verbatim, including its sys.
// Used to seed the store; lifecycle calls go through Backend.
func (s *Store) Import(ctx context.Context, e ir.Entity) error {
	if err := e.Sys.Validate(); err != nil {
		return fmt.Errorf("import entity: %w", err)
	}
	if e.Sys.ID == "" {
		return fmt.Errorf("import entity: missing id")
	}
	if e.Sys.Version < 1 {
		return fmt.Errorf("import entity %s: version must be positive", e.Sys.ID)
	}
	fields, err := marshalFields(e.Fields)
	if err != nil {
		return fmt.Errorf("import entity: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			content_type_id = excluded.content_type_id,
			version = excluded.version,
			published_version = excluded.published_version,
			archived_version = excluded.archived_version,
			deleted_version = excluded.deleted_version,
			fields = excluded.fields
	`,
		e.Sys.ID,
		string(e.Sys.Type),
		e.Sys.ContentTypeID,
		e.Sys.Version,
		nullable(e.Sys.PublishedVersion),
		nullable(e.Sys.ArchivedVersion),
		nullable(e.Sys.DeletedVersion),
		fields,
	)
	if err != nil {
		return fmt.Errorf("import entity: %w", err)
	}
	return nil
}

// Get returns an entity by id, including tombstones.
// Returns a NotFound APIError if no row exists.
func (s *Store) Get(ctx context.Context, id string) (ir.Entity, error) {
	return getEntity(ctx, s.db, id)
}

// List returns every entity ordered by id. An empty contentTypeID matches
// all entities.
func (s *Store) List(ctx context.Context, contentTypeID string) ([]ir.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities`
	var args []any
	if contentTypeID != "" {
		query += ` WHERE content_type_id = ?`
		args = append(args, contentTypeID)
	}
	query += ` ORDER BY id ASC COLLATE BINARY`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []ir.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return out, nil
}

// SaveFields replaces an entity's field data. version is the version the
// edit was based on; a stale version fails with VersionMismatch. Returns
// the bumped sys.
func (s *Store) SaveFields(ctx context.Context, id string, version int64, fields map[string]map[string]any) (*ir.EntitySys, error) {
	data, err := marshalFields(fields)
	if err != nil {
		return nil, fmt.Errorf("save fields: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save fields: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	current, err := getEntity(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current.Sys.DeletedVersion != nil {
		return nil, notFound(id)
	}
	if current.Sys.Version != version {
		return nil, versionMismatch(id, version, current.Sys.Version)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE entities SET fields = ?, version = version + 1 WHERE id = ?`,
		data, id,
	); err != nil {
		return nil, fmt.Errorf("save fields: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save fields: commit: %w", err)
	}

	sys := current.Sys.Clone()
	sys.Version++
	return &sys, nil
}

func getEntity(ctx context.Context, q querier, id string) (ir.Entity, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Entity{}, notFound(id)
	}
	if err != nil {
		return ir.Entity{}, fmt.Errorf("get entity %s: %w", id, err)
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (ir.Entity, error) {
	var (
		e                            ir.Entity
		typ, fields                  string
		published, archived, deleted sql.NullInt64
	)
	if err := row.Scan(&e.Sys.ID, &typ, &e.Sys.ContentTypeID, &e.Sys.Version, &published, &archived, &deleted, &fields); err != nil {
		return ir.Entity{}, err
	}
	e.Sys.Type = ir.EntityType(typ)
	e.Sys.PublishedVersion = fromNullable(published)
	e.Sys.ArchivedVersion = fromNullable(archived)
	e.Sys.DeletedVersion = fromNullable(deleted)

	var err error
	e.Fields, err = unmarshalFields(fields)
	if err != nil {
		return ir.Entity{}, err
	}
	return e, nil
}

func nullable(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNullable(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return ir.V(v.Int64)
}

// Persist saves an edited entity based on its current sys version. It lets
// the store back a live document.
func (s *Store) Persist(ctx context.Context, e ir.Entity) (*ir.EntitySys, error) {
	return s.SaveFields(ctx, e.Sys.ID, e.Sys.Version, e.Fields)
}
