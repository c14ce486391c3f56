// Package eligibility computes compensation determinations under EU
// Regulation 261/2004 from flight facts and static airport reference
// data. The engine is a pure function: no I/O, no clock, no
// persistence; callers snapshot its outputs onto the claim.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/eligibility
package eligibility

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

//go:embed airports.csv
var airportsCSV []byte

// Airport is one row of the static reference table: coordinates for
// great-circle distance, taxi times for gate-arrival estimation, and
// the regulation-coverage flag (EU, EEA and CH count as covered).
type Airport struct {
	IATA string
	Name string
	Lat  float64
	Lon  float64

	TaxiOutMin int
	TaxiInMin  int

	EU bool
}

// Registry is the immutable airport table. It is loaded once at
// process start and never mutated afterwards.
type Registry struct {
	byCode map[string]Airport
}

// NewRegistry parses the CSV reference format:
//
//	iata,name,latitude,longitude,taxi_out_min,taxi_in_min,eu
//
// A header row is required. Duplicate codes are rejected.
func NewRegistry(r io.Reader) (*Registry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 7

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("airports: read header: %w", err)
	}
	if header[0] != "iata" {
		return nil, fmt.Errorf("airports: unexpected header %q", header[0])
	}

	reg := &Registry{byCode: make(map[string]Airport)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("airports: line %d: %w", line, err)
		}

		a := Airport{
			IATA: strings.ToUpper(strings.TrimSpace(rec[0])),
			Name: rec[1],
		}
		if len(a.IATA) != 3 {
			return nil, fmt.Errorf("airports: line %d: bad IATA code %q", line, rec[0])
		}
		if a.Lat, err = strconv.ParseFloat(rec[2], 64); err != nil {
			return nil, fmt.Errorf("airports: line %d: latitude: %w", line, err)
		}
		if a.Lon, err = strconv.ParseFloat(rec[3], 64); err != nil {
			return nil, fmt.Errorf("airports: line %d: longitude: %w", line, err)
		}
		if a.TaxiOutMin, err = strconv.Atoi(rec[4]); err != nil {
			return nil, fmt.Errorf("airports: line %d: taxi_out_min: %w", line, err)
		}
		if a.TaxiInMin, err = strconv.Atoi(rec[5]); err != nil {
			return nil, fmt.Errorf("airports: line %d: taxi_in_min: %w", line, err)
		}
		a.EU = rec[6] == "1"

		if _, dup := reg.byCode[a.IATA]; dup {
			return nil, fmt.Errorf("airports: line %d: duplicate code %s", line, a.IATA)
		}
		reg.byCode[a.IATA] = a
	}
	if len(reg.byCode) == 0 {
		return nil, fmt.Errorf("airports: empty table")
	}
	return reg, nil
}

var (
	embeddedOnce sync.Once
	embeddedReg  *Registry
	embeddedErr  error
)

// Load returns the registry built from the embedded reference table.
// The parse runs once; subsequent calls return the cached result.
func Load() (*Registry, error) {
	embeddedOnce.Do(func() {
		embeddedReg, embeddedErr = NewRegistry(bytes.NewReader(airportsCSV))
	})
	return embeddedReg, embeddedErr
}

// Lookup resolves an IATA code. Codes are case-insensitive.
func (r *Registry) Lookup(code string) (Airport, bool) {
	a, ok := r.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return a, ok
}

// Count returns the number of airports in the table.
func (r *Registry) Count() int {
	return len(r.byCode)
}

// earthRadiusKm is the mean Earth radius used for great-circle math.
const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between
// two coordinates.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Distance returns the great-circle distance in kilometers between two
// airports.
func Distance(from, to Airport) float64 {
	return Haversine(from.Lat, from.Lon, to.Lat, to.Lon)
}
