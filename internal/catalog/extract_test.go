package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadsync/internal/types"
)

// squareWKT is a 100m square, formatted the way st_astext emits polygons.
const squareWKT = "POLYGON((200000 600000,200100 600000,200100 600100,200000 600100,200000 600000))"

func goodRow() sourceRow {
	return sourceRow{
		ID:            42,
		BlockID:       6941,
		ParcelID:      120,
		SuffixID:      0,
		WKT:           squareWKT,
		Active:        true,
		CatalogUpdate: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
		CatalogInsert: time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
		JSONData: []byte(`{
			"LOCALITY_ID": 3000,
			"LOCALITY_NAME": "Jerusalem",
			"REGION_ID": 1,
			"REGION_NAME": "Jerusalem District",
			"MUNI_HEB": "ירושלים",
			"STATUS_CD": "REG",
			"STATUS_TEXT": "Registered",
			"LEGAL_AREA": 512.5,
			"REG_AREA": "510.0",
			"MUTATION_DT": "2024-11-02",
			"REG_DATE": "1998-03-17",
			"LAND_USE_CD": "RES",
			"LAND_USE": "Residential",
			"OWNER_TYPE": "Private",
			"SURVEY_ACC": "High",
			"PLAN_NUM": "JM/1234",
			"REMARK": "none",
			"IS_HISTORIC": 0
		}`),
	}
}

func TestParcelFromRow(t *testing.T) {
	seq := NewSequence(1)
	p, err := parcelFromRow(goodRow(), seq)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.ID, "surrogate id comes from the sequence, not the catalog id")
	assert.Equal(t, types.Key{Block: 6941, Parcel: 120, Suffix: 0}, p.Key())
	assert.True(t, p.Active)

	assert.Equal(t, int64(3000), p.LocalityID)
	assert.Equal(t, "Jerusalem", p.LocalityName)
	assert.Equal(t, "ירושלים", p.MuniName)
	assert.Equal(t, "REG", p.StatusCode)
	assert.InDelta(t, 512.5, p.LegalArea, 1e-9)
	assert.InDelta(t, 510.0, p.RegisteredArea, 1e-9, "string-encoded numbers are coerced")
	assert.Equal(t, "2024-11-02", p.MutationDate)
	assert.False(t, p.Historic)

	assert.InDelta(t, 100*100, math.Abs(p.ShapeArea), 1e-6)
	assert.InDelta(t, 400, p.ShapeLength, 1e-6)
	require.Len(t, p.Geometry, 1)
	assert.Len(t, p.Geometry[0], 5)
}

func TestParcelFromRow_UnknownKeysDroppedMissingKeysZero(t *testing.T) {
	row := goodRow()
	row.JSONData = []byte(`{"LOCALITY_NAME": "Haifa", "SOME_NEW_FIELD": "ignored", "X": 9}`)

	p, err := parcelFromRow(row, NewSequence(1))
	require.NoError(t, err)

	assert.Equal(t, "Haifa", p.LocalityName)
	assert.Zero(t, p.LocalityID)
	assert.Empty(t, p.StatusCode)
	assert.Zero(t, p.LegalArea)
}

func TestParcelFromRow_BadPayload(t *testing.T) {
	row := goodRow()
	row.JSONData = []byte(`{not json`)

	_, err := parcelFromRow(row, NewSequence(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode payload")
}

func TestParcelFromRow_BadGeometryLeavesNoIDGap(t *testing.T) {
	seq := NewSequence(1)

	bad := goodRow()
	bad.WKT = "POLYGON((not a polygon"
	_, err := parcelFromRow(bad, seq)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse polygon")

	p, err := parcelFromRow(goodRow(), seq)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID, "a skipped row does not consume a surrogate id")
}

func TestPayloadFieldLookup(t *testing.T) {
	pl := payload{"LOCALITY_ID": float64(3000), "REMARK": "none"}

	assert.Equal(t, float64(3000), pl.field("locality_id"))
	assert.Equal(t, "none", pl.field("remarks"))
	assert.Nil(t, pl.field("status_code"), "mapped column absent from the payload")
	assert.Nil(t, pl.field("no_such_column"), "column without a payload key")
}

func TestParcelFromRowFillsEveryMappedColumn(t *testing.T) {
	// Drive the fill from the remap table itself: give every payload key a
	// distinct value and check it lands in its column's slot, so a column the
	// table maps but the fill forgets (or misspells) shows up here.
	index := make(map[string]int, len(types.Schema))
	kinds := make(map[string]types.FieldKind, len(types.Schema))
	for i, f := range types.Schema {
		index[f.Name] = i
		kinds[f.Name] = f.Kind
	}

	data := make(map[string]any, len(PayloadKeys))
	want := make(map[string]any, len(PayloadKeys))
	for key, column := range PayloadKeys {
		i := index[column]
		switch kinds[column] {
		case types.FieldInt:
			data[key] = i + 100
			want[column] = int64(i + 100)
		case types.FieldFloat:
			data[key] = float64(i) + 0.5
			want[column] = float64(i) + 0.5
		case types.FieldBool:
			data[key] = true
			want[column] = true
		default:
			data[key] = fmt.Sprintf("v%d", i)
			want[column] = fmt.Sprintf("v%d", i)
		}
	}

	row := goodRow()
	var err error
	row.JSONData, err = json.Marshal(data)
	require.NoError(t, err)

	p, err := parcelFromRow(row, NewSequence(1))
	require.NoError(t, err)

	vals := p.Values()
	for column, expected := range want {
		assert.Equalf(t, expected, vals[index[column]], "column %s", column)
	}
}

func TestPayloadKeysMatchSchema(t *testing.T) {
	assert.Len(t, PayloadKeys, 18)

	columns := make(map[string]bool)
	for _, name := range types.ColumnNames() {
		columns[name] = true
	}
	for key, target := range PayloadKeys {
		assert.Truef(t, columns[target], "payload key %s maps to unknown column %s", key, target)
	}
}

func TestSequence(t *testing.T) {
	seq := NewSequence(10)
	assert.Equal(t, int64(10), seq.Next())
	assert.Equal(t, int64(11), seq.Next())
	assert.Equal(t, int64(12), seq.Next())
}

func TestCoercions(t *testing.T) {
	assert.Equal(t, "7", asString(float64(7)))
	assert.Equal(t, "", asString(nil))
	assert.Equal(t, int64(12), asInt("12"))
	assert.Equal(t, int64(0), asInt("twelve"))
	assert.InDelta(t, 3.5, asFloat("3.5"), 1e-9)

	assert.True(t, asBool(true))
	assert.True(t, asBool(float64(1)))
	assert.True(t, asBool("Y"))
	assert.True(t, asBool("true"))
	assert.False(t, asBool("N"))
	assert.False(t, asBool(nil))
}
