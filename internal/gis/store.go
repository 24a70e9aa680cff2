// Package gis is the destination side of the sync: a PostGIS table addressed
// by the blocks-and-parcels composite key.
package gis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"

	"cadsync/internal/types"
)

// ErrTableNotFound reports that the destination table does not exist yet.
// Callers treat it as "create the table", never as a fatal condition.
var ErrTableNotFound = errors.New("destination table not found")

// SchemaMismatchError reports that the destination table exists but its
// column list disagrees with the fixed schema. This is fatal: syncing into a
// drifted table would silently corrupt it.
type SchemaMismatchError struct {
	Table    string
	Expected []string
	Found    []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s schema mismatch: expected columns %v, found %v",
		e.Table, e.Expected, e.Found)
}

// Store wraps the destination table with key-addressed row operations.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	table  string
	log    *zap.Logger
}

// NewStore returns a store bound to schema.table on the given GIS pool.
func NewStore(pool *pgxpool.Pool, schema, table string, log *zap.Logger) *Store {
	return &Store{pool: pool, schema: schema, table: table, log: log}
}

func (s *Store) qualified() string {
	return pgx.Identifier{s.schema, s.table}.Sanitize()
}

// EnsureTable validates an existing destination table against the fixed
// schema, creating it when absent. A column mismatch is returned as a
// *SchemaMismatchError and aborts the run.
func (s *Store) EnsureTable(ctx context.Context) error {
	err := s.validateSchema(ctx)
	if errors.Is(err, ErrTableNotFound) {
		s.log.Info("destination table missing, creating",
			zap.String("schema", s.schema), zap.String("table", s.table))
		return s.createTable(ctx)
	}
	return err
}

// validateSchema compares the live column list (from information_schema)
// against the fixed schema plus the geometry column.
func (s *Store) validateSchema(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, s.schema, s.table)
	if err != nil {
		return fmt.Errorf("read columns of %s: %w", s.qualified(), err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan column of %s: %w", s.qualified(), err)
		}
		found = append(found, strings.ToLower(name))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read columns of %s: %w", s.qualified(), err)
	}

	if len(found) == 0 {
		return fmt.Errorf("%s.%s: %w", s.schema, s.table, ErrTableNotFound)
	}

	expected := append(types.ColumnNames(), "geom")
	if len(found) != len(expected) {
		return &SchemaMismatchError{Table: s.qualified(), Expected: expected, Found: found}
	}
	for i := range expected {
		if found[i] != expected[i] {
			return &SchemaMismatchError{Table: s.qualified(), Expected: expected, Found: found}
		}
	}
	return nil
}

// createTable creates the destination table, its composite-key uniqueness
// constraint and the spatial index in one transaction.
func (s *Store) createTable(ctx context.Context) error {
	cols := make([]string, 0, len(types.Schema)+1)
	for _, f := range types.Schema {
		cols = append(cols, fmt.Sprintf("\t%s %s", f.Name, sqlType(f)))
	}
	cols = append(cols, fmt.Sprintf("\tgeom geometry(POLYGON, %d)", types.SRID))

	createSQL := fmt.Sprintf("CREATE TABLE %s (\n%s\n)", s.qualified(), strings.Join(cols, ",\n"))
	keyIdx := pgx.Identifier{s.table + "_key_idx"}.Sanitize()
	geomIdx := pgx.Identifier{s.table + "_geom_idx"}.Sanitize()

	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return fmt.Errorf("create table %s: %w", s.qualified(), err)
		}
		uniq := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (block_id, parcel_id, suffix_id)", keyIdx, s.qualified())
		if _, err := tx.Exec(ctx, uniq); err != nil {
			return fmt.Errorf("create key index on %s: %w", s.qualified(), err)
		}
		gist := fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (geom)", geomIdx, s.qualified())
		if _, err := tx.Exec(ctx, gist); err != nil {
			return fmt.Errorf("create spatial index on %s: %w", s.qualified(), err)
		}
		return nil
	})
}

// sqlType maps a schema field to its Postgres column type.
func sqlType(f types.FieldSpec) string {
	switch f.Kind {
	case types.FieldInt:
		return "bigint"
	case types.FieldFloat:
		return "double precision"
	case types.FieldBool:
		return "boolean"
	case types.FieldTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("varchar(%d)", f.Length)
	}
}

// WithTx runs fn inside a transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx on %s: %w", s.qualified(), err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx on %s: %w", s.qualified(), err)
	}
	return nil
}

// ReadAll loads the full destination table. Rows whose geometry does not
// parse are kept with a warning and no geometry: their keys must stay visible
// so the key-addressed update rewrites the damaged geometry from the source
// instead of colliding with it on insert.
func (s *Store) ReadAll(ctx context.Context) ([]types.Parcel, error) {
	q := fmt.Sprintf("SELECT %s, ST_AsText(geom) FROM %s",
		strings.Join(types.ColumnNames(), ", "), s.qualified())

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read destination table %s: %w", s.qualified(), err)
	}
	defer rows.Close()

	var parcels []types.Parcel
	for rows.Next() {
		var p types.Parcel
		var geomWKT string
		if err := rows.Scan(
			&p.ID, &p.BlockID, &p.ParcelID, &p.SuffixID,
			&p.Active, &p.CatalogUpdate, &p.CatalogInsert,
			&p.LocalityID, &p.LocalityName, &p.RegionID, &p.RegionName, &p.MuniName,
			&p.StatusCode, &p.StatusText, &p.LegalArea, &p.RegisteredArea,
			&p.MutationDate, &p.RegistrationDate, &p.LandUseCode, &p.LandUseDesc,
			&p.OwnershipType, &p.SurveyAccuracy, &p.PlanNumber, &p.Remarks, &p.Historic,
			&p.ShapeArea, &p.ShapeLength, &p.SyncDate, &p.Source,
			&geomWKT,
		); err != nil {
			return nil, fmt.Errorf("scan destination row of %s: %w", s.qualified(), err)
		}
		if poly, err := wkt.UnmarshalPolygon(geomWKT); err != nil {
			s.log.Warn("destination row has unparsable geometry, leaving repair to the update pass",
				zap.Stringer("key", p.Key()), zap.Error(err))
		} else {
			p.Geometry = poly
		}
		parcels = append(parcels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read destination table %s: %w", s.qualified(), err)
	}
	return parcels, nil
}

// Insert adds a new destination row with the source record's attributes.
func (s *Store) Insert(ctx context.Context, p types.Parcel) error {
	cols := append(types.ColumnNames(), "geom")
	ph := make([]string, len(types.Schema))
	for i := range types.Schema {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s, ST_GeomFromText($%d, %d))",
		s.qualified(), strings.Join(cols, ", "), strings.Join(ph, ", "),
		len(types.Schema)+1, types.SRID)

	args := append(p.Values(), wkt.MarshalString(p.Geometry))
	if _, err := s.pool.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("insert %s into %s: %w", p.Key(), s.qualified(), err)
	}
	return nil
}

// Update overwrites the full attribute tuple of the destination rows carrying
// the record's composite key. The id column is a run-local extraction
// sequence and is not unique here, so rows are never addressed by it.
func (s *Store) Update(ctx context.Context, p types.Parcel) error {
	var sets []string
	var args []any
	vals := p.Values()
	n := 1
	for i, name := range types.ColumnNames() {
		if i >= 1 && i <= 3 {
			continue // the key columns address the row and stay as they are
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", name, n))
		args = append(args, vals[i])
		n++
	}
	sets = append(sets, fmt.Sprintf("geom = ST_GeomFromText($%d, %d)", n, types.SRID))
	args = append(args, wkt.MarshalString(p.Geometry))
	n++

	q := fmt.Sprintf("UPDATE %s SET %s WHERE block_id = $%d AND parcel_id = $%d AND suffix_id = $%d",
		s.qualified(), strings.Join(sets, ", "), n, n+1, n+2)
	args = append(args, p.BlockID, p.ParcelID, p.SuffixID)

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s in %s: %w", p.Key(), s.qualified(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s in %s: no row with that key", p.Key(), s.qualified())
	}
	return nil
}

// Delete removes the destination rows carrying the given composite key.
func (s *Store) Delete(ctx context.Context, k types.Key) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE block_id = $1 AND parcel_id = $2 AND suffix_id = $3", s.qualified())
	if _, err := s.pool.Exec(ctx, q, k.Block, k.Parcel, k.Suffix); err != nil {
		return fmt.Errorf("delete %s from %s: %w", k, s.qualified(), err)
	}
	return nil
}
