// Package container materializes the extracted snapshot as an ESRI shapefile:
// one polygon layer with the fixed blocks-and-parcels attribute schema and an
// EPSG:2039 projection file. The container is written once per run, read back
// by the reconciliation stage and discarded afterwards.
package container

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"cadsync/internal/types"
)

// LayerName is the base name of the shapefile the extraction stage produces.
const LayerName = "blocks_and_parcels"

// prj2039 is the well-known text of the Israeli TM Grid, written next to the
// .shp so GIS clients pick up the CRS.
const prj2039 = `PROJCS["Israel 1993 / Israeli TM Grid",GEOGCS["Israel 1993",DATUM["Israel_1993",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",31.7343936111111],PARAMETER["central_meridian",35.2045169444444],PARAMETER["scale_factor",1.0000067],PARAMETER["false_easting",219529.584],PARAMETER["false_northing",626907.39],UNIT["metre",1]]`

// timeLayout is how timestamp attributes are stored in the DBF, which has no
// native timestamp type.
const timeLayout = time.RFC3339

// Writer appends parcel records to a freshly created shapefile container.
type Writer struct {
	shp  *shp.Writer
	path string
	rows int
}

// Create makes a new shapefile container in dir, replacing any previous one,
// and writes the projection sidecar.
func Create(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create container dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, LayerName+".shp")

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return nil, fmt.Errorf("create shapefile %s: %w", path, err)
	}
	w.SetFields(dbfFields())

	prjPath := strings.TrimSuffix(path, ".shp") + ".prj"
	if err := os.WriteFile(prjPath, []byte(prj2039), 0o644); err != nil {
		w.Close()
		return nil, fmt.Errorf("write projection file %s: %w", prjPath, err)
	}

	return &Writer{shp: w, path: path}, nil
}

// Path returns the .shp path of the container.
func (w *Writer) Path() string { return w.path }

// Count returns how many records have been appended so far.
func (w *Writer) Count() int { return w.rows }

// Append writes one record: the 29 attribute columns, then the polygon shape.
// Attributes go first so a rejected column never leaves a shape without a
// record behind it; the failed row's attributes are overwritten by the next
// append, which reuses the row index.
func (w *Writer) Append(p types.Parcel) error {
	for i, v := range p.Values() {
		if err := w.shp.WriteAttribute(w.rows, i, dbfValue(v)); err != nil {
			return fmt.Errorf("write attribute %s for %s: %w", types.Schema[i].Name, p.Key(), err)
		}
	}
	w.shp.Write(polygonShape(p.Geometry))
	w.rows++
	return nil
}

// Close flushes and closes the underlying shapefile.
func (w *Writer) Close() {
	w.shp.Close()
}

// dbfFields builds the DBF field table from the fixed schema, using the
// ten-character aliases the format requires.
func dbfFields() []shp.Field {
	fields := make([]shp.Field, len(types.Schema))
	for i, f := range types.Schema {
		switch f.Kind {
		case types.FieldInt:
			fields[i] = shp.NumberField(f.Alias, uint8(f.Length))
		case types.FieldFloat:
			fields[i] = shp.FloatField(f.Alias, uint8(f.Length), uint8(f.Precision))
		case types.FieldBool:
			fields[i] = shp.NumberField(f.Alias, 1)
		default: // text and timestamps are stored as strings
			fields[i] = shp.StringField(f.Alias, uint8(f.Length))
		}
	}
	return fields
}

// dbfValue converts a schema value to something the DBF writer accepts
// (the writer only handles int, float64 and string).
func dbfValue(v any) any {
	switch t := v.(type) {
	case int64:
		return int(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(timeLayout)
	default:
		return v
	}
}

// polygonShape converts an orb polygon into the shapefile part/point layout.
func polygonShape(poly orb.Polygon) *shp.Polygon {
	var parts []int32
	var points []shp.Point
	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64

	for _, ring := range poly {
		parts = append(parts, int32(len(points)))
		for _, pt := range ring {
			points = append(points, shp.Point{X: pt[0], Y: pt[1]})
			minX = math.Min(minX, pt[0])
			minY = math.Min(minY, pt[1])
			maxX = math.Max(maxX, pt[0])
			maxY = math.Max(maxY, pt[1])
		}
	}

	return &shp.Polygon{
		Box:       shp.Box{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
		NumParts:  int32(len(parts)),
		NumPoints: int32(len(points)),
		Parts:     parts,
		Points:    points,
	}
}

// Read loads the full container back into memory. Rows whose attributes fail
// to parse are skipped and counted rather than aborting the pass.
func Read(path string, log *zap.Logger) ([]types.Parcel, int, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open container %s: %w", path, err)
	}
	defer r.Close()

	if got := len(r.Fields()); got != len(types.Schema) {
		return nil, 0, fmt.Errorf("container %s has %d attribute fields, want %d", path, got, len(types.Schema))
	}

	var parcels []types.Parcel
	skipped := 0
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			log.Warn("skipping non-polygon container shape", zap.Int("row", idx))
			continue
		}

		vals := make([]string, len(types.Schema))
		for i := range types.Schema {
			vals[i] = strings.TrimSpace(r.ReadAttribute(idx, i))
		}

		p, err := parcelFromStrings(vals)
		if err != nil {
			skipped++
			log.Warn("skipping unparsable container row", zap.Int("row", idx), zap.Error(err))
			continue
		}
		p.Geometry = orbPolygon(poly)
		parcels = append(parcels, p)
	}
	// A truncated or corrupt .shp ends the loop early with the error parked
	// on the reader. A short read must fail the pass: handing a partial
	// snapshot to the reconciler would delete every record the short read
	// dropped.
	if err := r.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read container %s: %w", path, err)
	}

	return parcels, skipped, nil
}

// orbPolygon splits the flat shapefile point slice back into rings, the same
// part walk the attribute loader uses when reading reference layers.
func orbPolygon(poly *shp.Polygon) orb.Polygon {
	numParts := len(poly.Parts)
	out := make(orb.Polygon, numParts)
	for partIdx := 0; partIdx < numParts; partIdx++ {
		start := poly.Parts[partIdx]
		end := int32(len(poly.Points))
		if partIdx+1 < numParts {
			end = poly.Parts[partIdx+1]
		}
		ring := make(orb.Ring, 0, end-start)
		for i := start; i < end; i++ {
			pt := poly.Points[i]
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		out[partIdx] = ring
	}
	return out
}

// parcelFromStrings rebuilds a parcel from DBF attribute strings in schema
// order. The geometry is attached by the caller.
func parcelFromStrings(vals []string) (types.Parcel, error) {
	var p types.Parcel
	var err error

	geti := func(i int) int64 {
		if err != nil || vals[i] == "" {
			return 0
		}
		var n int64
		if n, err = strconv.ParseInt(vals[i], 10, 64); err != nil {
			err = fmt.Errorf("column %s: %w", types.Schema[i].Name, err)
		}
		return n
	}
	getf := func(i int) float64 {
		if err != nil || vals[i] == "" {
			return 0
		}
		var f float64
		if f, err = strconv.ParseFloat(vals[i], 64); err != nil {
			err = fmt.Errorf("column %s: %w", types.Schema[i].Name, err)
		}
		return f
	}
	getb := func(i int) bool { return geti(i) != 0 }
	gett := func(i int) time.Time {
		if err != nil || vals[i] == "" {
			return time.Time{}
		}
		var t time.Time
		if t, err = time.Parse(timeLayout, vals[i]); err != nil {
			err = fmt.Errorf("column %s: %w", types.Schema[i].Name, err)
		}
		return t
	}

	p.ID = geti(0)
	p.BlockID = geti(1)
	p.ParcelID = geti(2)
	p.SuffixID = geti(3)
	p.Active = getb(4)
	p.CatalogUpdate = gett(5)
	p.CatalogInsert = gett(6)
	p.LocalityID = geti(7)
	p.LocalityName = vals[8]
	p.RegionID = geti(9)
	p.RegionName = vals[10]
	p.MuniName = vals[11]
	p.StatusCode = vals[12]
	p.StatusText = vals[13]
	p.LegalArea = getf(14)
	p.RegisteredArea = getf(15)
	p.MutationDate = vals[16]
	p.RegistrationDate = vals[17]
	p.LandUseCode = vals[18]
	p.LandUseDesc = vals[19]
	p.OwnershipType = vals[20]
	p.SurveyAccuracy = vals[21]
	p.PlanNumber = vals[22]
	p.Remarks = vals[23]
	p.Historic = getb(24)
	p.ShapeArea = getf(25)
	p.ShapeLength = getf(26)
	p.SyncDate = gett(27)
	p.Source = vals[28]

	return p, err
}
