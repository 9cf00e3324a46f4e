// Copyright 2025 The ChapaUY Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package spatial holds the geographic primitives shared by the extraction
// pipeline: points, great-circle distances, centroids and H3 cells.
package spatial

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
	"github.com/uber/h3-go/v4"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371e3

// ErrOutOfRange is returned when a latitude or longitude falls outside the
// valid WGS84 bounds.
var ErrOutOfRange = errors.New("coordinate out of range")

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// NewPoint builds a validated Point.
func NewPoint(lat, lng float64) (Point, error) {
	p := Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}

	return p, nil
}

// Validate checks latitude ∈ [-90,90] and longitude ∈ [-180,180].
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %f", ErrOutOfRange, p.Lat)
	}

	if math.IsNaN(p.Lng) || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %f", ErrOutOfRange, p.Lng)
	}

	return nil
}

// String returns a string representation of the Point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.Lng, p.Lat)
}

// Value implements the driver.Valuer interface for database serialization.
func (p Point) Value() (driver.Value, error) {
	return p.String(), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (p *Point) Scan(value interface{}) error {
	if value == nil {
		p.Lat, p.Lng = 0, 0

		return nil
	}

	switch v := value.(type) {
	case []byte:
		// DuckDB renders POINT_2D as "POINT (lng lat)"
		_, err := fmt.Sscanf(string(v), "POINT (%f %f)", &p.Lng, &p.Lat)

		return err
	case string:
		_, err := fmt.Sscanf(v, "POINT (%f %f)", &p.Lng, &p.Lat)

		return err
	case map[string]interface{}:
		x, okX := v["x"].(float64)
		y, okY := v["y"].(float64)

		if !okX || !okY {
			return fmt.Errorf("spatial: invalid map for point: expected 'x' and 'y' float64 fields, got %+v", v)
		}

		p.Lng = x
		p.Lat = y

		return nil
	default:
		return fmt.Errorf("spatial: unsupported type for Point scan: %T", value)
	}
}

func (p Point) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(p.Lat, p.Lng)
}

// HaversineDistance calculates the great-circle distance between two points on Earth in meters.
func (p Point) HaversineDistance(other Point) float64 {
	return p.latLng().Distance(other.latLng()).Radians() * EarthRadius
}

// DistanceKm is HaversineDistance expressed in kilometers.
func (p Point) DistanceKm(other Point) float64 {
	return p.HaversineDistance(other) / 1000
}

// Cell returns the H3 cell index containing the point at the given resolution.
func (p Point) Cell(res int) (h3.Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return 0, fmt.Errorf("converting to h3 cell at res %d: %w", res, err)
	}

	return cell, nil
}

// Centroid returns the spherical mean of the points. Antipodal sets, whose
// unit vectors cancel out, fall back to the first point.
func Centroid(points []Point) (Point, bool) {
	switch len(points) {
	case 0:
		return Point{}, false
	case 1:
		return points[0], true
	}

	var sum r3.Vector
	for _, pt := range points {
		sum = sum.Add(s2.PointFromLatLng(pt.latLng()).Vector)
	}

	if sum.Norm() < 1e-12 {
		return points[0], true
	}

	ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})

	return Point{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}, true
}
