// Package grid buckets coordinates into coarse community-feedback cells.
//
// A cell is addressed by its latitude and longitude rounded to two decimal
// places, roughly 1.1 km on a side at the equator and narrower east to west
// towards the poles. Cells describe a coarse area, not an exact distance.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Size is the edge length of a cell in degrees.
const Size = 0.01

var (
	// ErrInvalidID is returned when a cell ID is not two underscore-separated numbers.
	ErrInvalidID = errors.New("invalid grid id")
	// ErrInvalidCoordinates is returned for non-finite or out-of-range coordinates.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether the point is finite and within WGS84 bounds.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return ErrInvalidCoordinates
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// round2 rounds half away from zero to two decimals and folds -0 into 0 so
// both sides of the equator and meridian produce one key.
func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// ID returns the cell key for a coordinate, e.g. "12.35_77.65".
func ID(lat, lng float64) string {
	return fmt.Sprintf("%.2f_%.2f", round2(lat), round2(lng))
}

// Cell is a parsed cell key.
type Cell struct {
	ID  string
	Lat float64
	Lng float64
}

// Center returns the cell's anchor point.
func (c Cell) Center() Point {
	return Point{Lat: c.Lat, Lng: c.Lng}
}

// Parse validates a cell key and returns the cell it addresses. The key is
// normalised, so "12.3_77.6" parses to the cell "12.30_77.60".
func Parse(id string) (Cell, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 2 {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	lng, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	p := Point{Lat: round2(lat), Lng: round2(lng)}
	if err := p.Validate(); err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return Cell{ID: ID(p.Lat, p.Lng), Lat: p.Lat, Lng: p.Lng}, nil
}

// Of returns the cell containing a point.
func Of(p Point) Cell {
	lat, lng := round2(p.Lat), round2(p.Lng)
	return Cell{ID: ID(lat, lng), Lat: lat, Lng: lng}
}

// Unique maps points to cell IDs, keeping the first-seen order and dropping
// repeats.
func Unique(points []Point) []string {
	seen := make(map[string]struct{}, len(points))
	ids := make([]string, 0, len(points))
	for _, p := range points {
		id := ID(p.Lat, p.Lng)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
