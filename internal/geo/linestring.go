package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/roadops/operator-console/pkg/core"
)

// ErrTooFewPoints is returned when a line is requested for fewer than two
// points.
var ErrTooFewPoints = errors.New("line needs at least 2 points")

// LineString builds the ground-plane (x, z) line through points.
func LineString(points []core.Vec3) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("got %d: %w", len(points), ErrTooFewPoints)
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Z)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// Length returns the ground-plane length of the route in metres.
func Length(points []core.Vec3) (float64, error) {
	ls, err := LineString(points)
	if err != nil {
		return 0, err
	}
	return ls.Length(), nil
}

// WKT returns the route as well-known text in scene coordinates.
func WKT(points []core.Vec3) (string, error) {
	ls, err := LineString(points)
	if err != nil {
		return "", err
	}
	return ls.AsText(), nil
}

// LonLatLineString builds the route in WGS84 longitude/latitude.
func (g *Georeferencer) LonLatLineString(points []core.Vec3) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("got %d: %w", len(points), ErrTooFewPoints)
	}
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		lon, lat := g.LonLat(p)
		flat = append(flat, lon, lat)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// PathFeature encodes a proposal as a GeoJSON Feature. With a nil
// georeferencer the geometry stays in scene metres.
func PathFeature(p core.PathProposal, g *Georeferencer) ([]byte, error) {
	pts := p.Positions()
	length, err := Length(pts)
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", p.ID, err)
	}

	ls, err := LineString(pts)
	if g != nil {
		ls, err = g.LonLatLineString(pts)
	}
	if err != nil {
		return nil, fmt.Errorf("path %s: %w", p.ID, err)
	}

	pointIDs := make([]string, len(p.Points))
	for i, pt := range p.Points {
		pointIDs[i] = pt.ID
	}

	return json.Marshal(&geom.GeoJSONFeature{
		Geometry: ls.AsGeometry(),
		ID:       p.ID,
		Properties: map[string]interface{}{
			"status":    string(p.Status),
			"lengthM":   length,
			"pointIds":  pointIDs,
			"updatedAt": p.UpdatedAt,
		},
	})
}
