// Package catalog reads active blocks-and-parcels records from the
// central-catalog database and turns them into typed parcel records.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"

	"cadsync/internal/types"
)

// activeRowsQuery is the parameterless source query. Geometry comes back as
// well-known text so the row can be decoded without a binary geometry codec.
const activeRowsQuery = `
	SELECT id, block_id, parcel_id, suffix_id, st_astext(polygon), active,
	       catalog_update, catalog_insert, json_data
	FROM central_catalog_views.org_block_and_parcels_gis
	WHERE active = true`

// PayloadKeys maps the catalog's uppercase payload key names to the
// destination column names. Keys not listed here are dropped silently;
// listed keys missing from a payload default to the zero value.
var PayloadKeys = map[string]string{
	"LOCALITY_ID":   "locality_id",
	"LOCALITY_NAME": "locality_name",
	"REGION_ID":     "region_id",
	"REGION_NAME":   "region_name",
	"MUNI_HEB":      "muni_name",
	"STATUS_CD":     "status_code",
	"STATUS_TEXT":   "status_text",
	"LEGAL_AREA":    "legal_area",
	"REG_AREA":      "registered_area",
	"MUTATION_DT":   "mutation_date",
	"REG_DATE":      "registration_date",
	"LAND_USE_CD":   "land_use_code",
	"LAND_USE":      "land_use_desc",
	"OWNER_TYPE":    "ownership_type",
	"SURVEY_ACC":    "survey_accuracy",
	"PLAN_NUM":      "plan_number",
	"REMARK":        "remarks",
	"IS_HISTORIC":   "historic",
}

// payload is a decoded json_data object. Field lookups go through the
// PayloadKeys table, so the table stays the single source of truth for the
// key-to-column remap.
type payload map[string]any

// payloadKeyByColumn is PayloadKeys inverted, built once at init.
var payloadKeyByColumn = func() map[string]string {
	m := make(map[string]string, len(PayloadKeys))
	for key, column := range PayloadKeys {
		m[column] = key
	}
	return m
}()

// field returns the payload value destined for the given column, or nil when
// the column has no payload key or the payload lacks it.
func (pl payload) field(column string) any {
	key, ok := payloadKeyByColumn[column]
	if !ok {
		return nil
	}
	return pl[key]
}

// Sequence hands out surrogate ids during extraction. It is owned by the
// extraction loop; a fresh run starts a fresh sequence.
type Sequence struct {
	next int64
}

// NewSequence returns a sequence whose first value is start.
func NewSequence(start int64) *Sequence {
	return &Sequence{next: start}
}

// Next returns the current value and advances the sequence.
func (s *Sequence) Next() int64 {
	v := s.next
	s.next++
	return v
}

// sourceRow is one raw row of the active-rows query.
type sourceRow struct {
	ID            int64
	BlockID       int64
	ParcelID      int64
	SuffixID      int64
	WKT           string
	Active        bool
	CatalogUpdate time.Time
	CatalogInsert time.Time
	JSONData      []byte
}

// Extractor pulls the active blocks-and-parcels snapshot out of the catalog.
type Extractor struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewExtractor returns an extractor reading from the given catalog pool.
func NewExtractor(pool *pgxpool.Pool, log *zap.Logger) *Extractor {
	return &Extractor{pool: pool, log: log}
}

// Extract runs the active-rows query and converts every row into a parcel
// record. Rows with undecodable payloads or unparsable geometry are skipped
// and counted; a failing query aborts the batch. The returned records carry
// fresh surrogate ids in scan order.
func (e *Extractor) Extract(ctx context.Context) ([]types.Parcel, int, error) {
	rows, err := e.pool.Query(ctx, activeRowsQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("query active blocks and parcels: %w", err)
	}
	defer rows.Close()

	seq := NewSequence(1)
	var parcels []types.Parcel
	skipped := 0

	for rows.Next() {
		var row sourceRow
		if err := rows.Scan(&row.ID, &row.BlockID, &row.ParcelID, &row.SuffixID,
			&row.WKT, &row.Active, &row.CatalogUpdate, &row.CatalogInsert, &row.JSONData); err != nil {
			skipped++
			e.log.Warn("skipping unscannable catalog row", zap.Error(err))
			continue
		}

		p, err := parcelFromRow(row, seq)
		if err != nil {
			skipped++
			e.log.Warn("skipping catalog row",
				zap.Int64("block", row.BlockID),
				zap.Int64("parcel", row.ParcelID),
				zap.Int64("suffix", row.SuffixID),
				zap.Error(err))
			continue
		}
		parcels = append(parcels, p)
	}
	if err := rows.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read active blocks and parcels: %w", err)
	}

	e.log.Info("extracted catalog snapshot",
		zap.Int("records", len(parcels)), zap.Int("skipped", skipped))
	return parcels, skipped, nil
}

// parcelFromRow converts a raw catalog row to a parcel record: decode the
// payload, remap its keys onto the fixed schema, parse the WKT polygon and
// derive the shape measurements. The surrogate id is taken from seq only
// after the row is known to be good, so skipped rows leave no gaps.
func parcelFromRow(row sourceRow, seq *Sequence) (types.Parcel, error) {
	var pl payload
	if err := json.Unmarshal(row.JSONData, &pl); err != nil {
		return types.Parcel{}, fmt.Errorf("decode payload: %w", err)
	}

	poly, err := wkt.UnmarshalPolygon(strings.TrimSpace(row.WKT))
	if err != nil {
		return types.Parcel{}, fmt.Errorf("parse polygon: %w", err)
	}

	p := types.Parcel{
		BlockID:       row.BlockID,
		ParcelID:      row.ParcelID,
		SuffixID:      row.SuffixID,
		Active:        row.Active,
		CatalogUpdate: row.CatalogUpdate,
		CatalogInsert: row.CatalogInsert,

		LocalityID:       asInt(pl.field("locality_id")),
		LocalityName:     asString(pl.field("locality_name")),
		RegionID:         asInt(pl.field("region_id")),
		RegionName:       asString(pl.field("region_name")),
		MuniName:         asString(pl.field("muni_name")),
		StatusCode:       asString(pl.field("status_code")),
		StatusText:       asString(pl.field("status_text")),
		LegalArea:        asFloat(pl.field("legal_area")),
		RegisteredArea:   asFloat(pl.field("registered_area")),
		MutationDate:     asString(pl.field("mutation_date")),
		RegistrationDate: asString(pl.field("registration_date")),
		LandUseCode:      asString(pl.field("land_use_code")),
		LandUseDesc:      asString(pl.field("land_use_desc")),
		OwnershipType:    asString(pl.field("ownership_type")),
		SurveyAccuracy:   asString(pl.field("survey_accuracy")),
		PlanNumber:       asString(pl.field("plan_number")),
		Remarks:          asString(pl.field("remarks")),
		Historic:         asBool(pl.field("historic")),

		ShapeArea:   planar.Area(poly),
		ShapeLength: planar.Length(poly),
		SyncDate:    time.Now().UTC(),
		Source:      "central_catalog",
		Geometry:    poly,
	}
	p.ID = seq.Next()
	return p, nil
}

// asString coerces a decoded JSON value to a string.
func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// asInt coerces a decoded JSON value to an int64. Unparsable values become 0.
func asInt(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n
	default:
		return 0
	}
}

// asFloat coerces a decoded JSON value to a float64. Unparsable values become 0.
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	default:
		return 0
	}
}

// asBool coerces a decoded JSON value to a bool. The catalog encodes flags as
// booleans, 0/1 numbers or "Y"/"N" strings depending on the producing system.
func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "1" || s == "y" || s == "yes" || s == "true"
	default:
		return false
	}
}
