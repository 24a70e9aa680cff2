package types

// FieldKind is the storage type of a schema column. It drives both the DBF
// field definitions in the spatial container and the column types of the
// destination table.
type FieldKind int

const (
	FieldInt FieldKind = iota
	FieldFloat
	FieldText
	FieldBool
	FieldTimestamp
)

// FieldSpec describes one attribute column of the blocks-and-parcels schema.
// Name is the destination column name; Alias is the DBF field name, which is
// limited to ten characters by the shapefile format.
type FieldSpec struct {
	Name      string
	Alias     string
	Kind      FieldKind
	Length    int
	Precision int
}

// SRID is the coordinate reference system of every geometry this pipeline
// touches (Israeli TM Grid).
const SRID = 2039

// Schema is the fixed attribute column layout shared by the spatial container
// and the destination table. The geometry column is not listed here; it is
// always a polygon in EPSG:2039 and is handled separately by both stores.
var Schema = []FieldSpec{
	{Name: "id", Alias: "id", Kind: FieldInt, Length: 12},
	{Name: "block_id", Alias: "block_id", Kind: FieldInt, Length: 12},
	{Name: "parcel_id", Alias: "parcel_id", Kind: FieldInt, Length: 12},
	{Name: "suffix_id", Alias: "suffix_id", Kind: FieldInt, Length: 12},
	{Name: "active", Alias: "active", Kind: FieldBool, Length: 1},
	{Name: "catalog_update", Alias: "catalog_up", Kind: FieldTimestamp, Length: 30},
	{Name: "catalog_insert", Alias: "catalog_in", Kind: FieldTimestamp, Length: 30},
	{Name: "locality_id", Alias: "loc_id", Kind: FieldInt, Length: 12},
	{Name: "locality_name", Alias: "loc_name", Kind: FieldText, Length: 100},
	{Name: "region_id", Alias: "region_id", Kind: FieldInt, Length: 12},
	{Name: "region_name", Alias: "region_nam", Kind: FieldText, Length: 100},
	{Name: "muni_name", Alias: "muni_name", Kind: FieldText, Length: 100},
	{Name: "status_code", Alias: "status_cd", Kind: FieldText, Length: 10},
	{Name: "status_text", Alias: "status_txt", Kind: FieldText, Length: 50},
	{Name: "legal_area", Alias: "legal_area", Kind: FieldFloat, Length: 18, Precision: 4},
	{Name: "registered_area", Alias: "reg_area", Kind: FieldFloat, Length: 18, Precision: 4},
	{Name: "mutation_date", Alias: "mutation_d", Kind: FieldText, Length: 30},
	{Name: "registration_date", Alias: "reg_date", Kind: FieldText, Length: 30},
	{Name: "land_use_code", Alias: "landuse_cd", Kind: FieldText, Length: 10},
	{Name: "land_use_desc", Alias: "landuse_ds", Kind: FieldText, Length: 100},
	{Name: "ownership_type", Alias: "owner_type", Kind: FieldText, Length: 50},
	{Name: "survey_accuracy", Alias: "survey_acc", Kind: FieldText, Length: 20},
	{Name: "plan_number", Alias: "plan_num", Kind: FieldText, Length: 50},
	{Name: "remarks", Alias: "remarks", Kind: FieldText, Length: 254},
	{Name: "historic", Alias: "historic", Kind: FieldBool, Length: 1},
	{Name: "shape_area", Alias: "shape_area", Kind: FieldFloat, Length: 18, Precision: 4},
	{Name: "shape_length", Alias: "shape_len", Kind: FieldFloat, Length: 18, Precision: 4},
	{Name: "sync_date", Alias: "sync_date", Kind: FieldTimestamp, Length: 30},
	{Name: "source", Alias: "source", Kind: FieldText, Length: 50},
}

// ColumnNames returns the destination column names in schema order.
func ColumnNames() []string {
	names := make([]string, len(Schema))
	for i, f := range Schema {
		names[i] = f.Name
	}
	return names
}
