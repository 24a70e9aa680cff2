package gis

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cadsync/internal/types"
)

func TestSQLType(t *testing.T) {
	tests := []struct {
		field types.FieldSpec
		want  string
	}{
		{types.FieldSpec{Name: "block_id", Kind: types.FieldInt, Length: 12}, "bigint"},
		{types.FieldSpec{Name: "legal_area", Kind: types.FieldFloat, Length: 18}, "double precision"},
		{types.FieldSpec{Name: "active", Kind: types.FieldBool, Length: 1}, "boolean"},
		{types.FieldSpec{Name: "sync_date", Kind: types.FieldTimestamp, Length: 30}, "timestamp"},
		{types.FieldSpec{Name: "remarks", Kind: types.FieldText, Length: 254}, "varchar(254)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqlType(tt.field), tt.field.Name)
	}
}

func TestErrTableNotFoundIsTyped(t *testing.T) {
	// The not-found case travels wrapped, so callers branch on errors.Is
	// instead of matching error text.
	err := fmt.Errorf("gis_layers.blocks_and_parcels: %w", ErrTableNotFound)
	assert.True(t, errors.Is(err, ErrTableNotFound))

	var mismatch *SchemaMismatchError
	assert.False(t, errors.As(err, &mismatch))
}

func TestSchemaMismatchErrorIsTyped(t *testing.T) {
	var err error = &SchemaMismatchError{
		Table:    `"gis_layers"."blocks_and_parcels"`,
		Expected: []string{"id", "block_id"},
		Found:    []string{"id", "gush_id"},
	}

	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, err.Error(), "schema mismatch")
	assert.Contains(t, err.Error(), "gush_id")
	assert.False(t, errors.Is(err, ErrTableNotFound))
}
