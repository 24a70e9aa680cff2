package types

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Key is the composite identifier of a parcel record. It is the uniqueness
// invariant across both the extracted snapshot and the destination table: no
// two records in either collection may share a Key.
type Key struct {
	Block  int64
	Parcel int64
	Suffix int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Block, k.Parcel, k.Suffix)
}

// Parcel is one blocks-and-parcels record. The field order mirrors the fixed
// column schema (see Schema): surrogate id first, then the three key fields,
// the catalog bookkeeping columns, the payload-derived attributes and finally
// the derived shape measurements.
type Parcel struct {
	ID       int64
	BlockID  int64
	ParcelID int64
	SuffixID int64

	Active        bool
	CatalogUpdate time.Time
	CatalogInsert time.Time

	LocalityID       int64
	LocalityName     string
	RegionID         int64
	RegionName       string
	MuniName         string
	StatusCode       string
	StatusText       string
	LegalArea        float64
	RegisteredArea   float64
	MutationDate     string
	RegistrationDate string
	LandUseCode      string
	LandUseDesc      string
	OwnershipType    string
	SurveyAccuracy   string
	PlanNumber       string
	Remarks          string
	Historic         bool

	ShapeArea   float64
	ShapeLength float64
	SyncDate    time.Time
	Source      string

	Geometry orb.Polygon
}

// Key returns the composite key of the record.
func (p Parcel) Key() Key {
	return Key{Block: p.BlockID, Parcel: p.ParcelID, Suffix: p.SuffixID}
}

// Values returns the attribute values in Schema order. Both the spatial
// container and the destination store rely on this ordering.
func (p Parcel) Values() []any {
	return []any{
		p.ID, p.BlockID, p.ParcelID, p.SuffixID,
		p.Active, p.CatalogUpdate, p.CatalogInsert,
		p.LocalityID, p.LocalityName, p.RegionID, p.RegionName, p.MuniName,
		p.StatusCode, p.StatusText, p.LegalArea, p.RegisteredArea,
		p.MutationDate, p.RegistrationDate, p.LandUseCode, p.LandUseDesc,
		p.OwnershipType, p.SurveyAccuracy, p.PlanNumber, p.Remarks, p.Historic,
		p.ShapeArea, p.ShapeLength, p.SyncDate, p.Source,
	}
}
