package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaShape(t *testing.T) {
	assert.Len(t, Schema, 29)

	names := make(map[string]bool)
	aliases := make(map[string]bool)
	for _, f := range Schema {
		assert.Falsef(t, names[f.Name], "duplicate column name %s", f.Name)
		assert.Falsef(t, aliases[f.Alias], "duplicate DBF alias %s", f.Alias)
		assert.LessOrEqualf(t, len(f.Alias), 10, "DBF alias %s exceeds the shapefile limit", f.Alias)
		names[f.Name] = true
		aliases[f.Alias] = true
	}

	// The composite key occupies fixed positions 1..3, right after the
	// surrogate id.
	assert.Equal(t, "id", Schema[0].Name)
	assert.Equal(t, "block_id", Schema[1].Name)
	assert.Equal(t, "parcel_id", Schema[2].Name)
	assert.Equal(t, "suffix_id", Schema[3].Name)
}

func TestColumnNamesOrder(t *testing.T) {
	names := ColumnNames()
	require.Len(t, names, len(Schema))
	for i, f := range Schema {
		assert.Equal(t, f.Name, names[i])
	}
}

func TestParcelValuesAlignWithSchema(t *testing.T) {
	p := Parcel{ID: 9, BlockID: 1, ParcelID: 2, SuffixID: 3, LocalityName: "x"}
	vals := p.Values()

	require.Len(t, vals, len(Schema))
	assert.Equal(t, int64(9), vals[0])
	assert.Equal(t, int64(1), vals[1])
	assert.Equal(t, int64(2), vals[2])
	assert.Equal(t, int64(3), vals[3])
	assert.Equal(t, "x", vals[8])
}

func TestKey(t *testing.T) {
	p := Parcel{BlockID: 6941, ParcelID: 120, SuffixID: 2}
	assert.Equal(t, Key{Block: 6941, Parcel: 120, Suffix: 2}, p.Key())
	assert.Equal(t, "6941/120/2", p.Key().String())
}
