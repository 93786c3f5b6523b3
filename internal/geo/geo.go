package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/roadops/operator-console/pkg/core"
)

// Scene coordinates are metres in a local frame: X east, Z north, Y up.
// Georeferencing goes through EPSG:3857 around a WGS84 anchor, scaling by the
// Mercator factor at the anchor latitude so short distances stay true.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePosition parses "x,z" or "x,y,z" into a scene position. The two-value
// form leaves Y at zero.
func ParsePosition(coords string) (core.Vec3, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return core.Vec3{}, ErrInvalidCoordinates
	}
	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return core.Vec3{}, ErrInvalidCoordinates
		}
		vals[i] = v
	}
	if len(vals) == 2 {
		return core.Vec3{X: vals[0], Z: vals[1]}, nil
	}
	return core.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// ParsePoints parses a JSON array of positions, each [x,z] or [x,y,z].
// Input format: "[[x1,z1],[x2,y2,z2],...]"
func ParsePoints(input string) ([]core.Vec3, error) {
	var coords [][]float64
	if err := json.Unmarshal([]byte(input), &coords); err != nil {
		return nil, fmt.Errorf("failed to parse points JSON: %w", err)
	}

	out := make([]core.Vec3, len(coords))
	for i, c := range coords {
		switch len(c) {
		case 2:
			out[i] = core.Vec3{X: c[0], Z: c[1]}
		case 3:
			out[i] = core.Vec3{X: c[0], Y: c[1], Z: c[2]}
		default:
			return nil, fmt.Errorf("coordinate %d has %d values: %w", i, len(c), ErrInvalidCoordinates)
		}
	}
	return out, nil
}

// Georeferencer maps scene metres to WGS84 longitude/latitude.
type Georeferencer struct {
	originX, originY float64
	scale            float64
	toWGS84          func(a, b, c float64) (float64, float64, float64)
}

// NewGeoreferencer anchors the scene origin at (lon, lat).
func NewGeoreferencer(lon, lat float64) (*Georeferencer, error) {
	if lat <= -85 || lat >= 85 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("anchor %f,%f: %w", lon, lat, ErrInvalidCoordinates)
	}
	origin, err := Coords3857From4326(lon, lat)
	if err != nil {
		return nil, err
	}
	c, ok := origin.Coordinates()
	if !ok {
		return nil, ErrInvalidCoordinates
	}
	return &Georeferencer{
		originX: c.X,
		originY: c.Y,
		scale:   1 / math.Cos(lat*math.Pi/180),
		toWGS84: wgs84.EPSG().Transform(3857, 4326),
	}, nil
}

// LonLat returns the WGS84 position of a scene point.
func (g *Georeferencer) LonLat(v core.Vec3) (lon, lat float64) {
	lon, lat, _ = g.toWGS84(g.originX+v.X*g.scale, g.originY+v.Z*g.scale, 0)
	return lon, lat
}

// Coords3857From4326 creates a Web Mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	return point, nil
}
