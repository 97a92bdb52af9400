// Package polyline encodes and decodes route geometry in Google's encoded
// polyline format and thins it out into points suitable for grid lookups.
// The format is documented at https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for distances.
const EarthRadiusMeters = 6371000.0

// ErrMalformed is returned when an encoded polyline ends mid-value or
// contains characters outside the encoding alphabet.
var ErrMalformed = errors.New("polyline: malformed input")

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LatLng converts the coordinate to an s2 point.
func (c Coordinate) LatLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lng)
}

// Decode decodes a polyline with 5 decimal places of precision.
// An empty string decodes to nil.
func Decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	var coords []Coordinate
	index, lat, lng := 0, 0, 0

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		lngDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next
		lat += latDelta
		lng += lngDelta

		coords = append(coords, Coordinate{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}

	return coords, nil
}

// decodeValue reads one zigzag-encoded delta starting at index.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrMalformed
		}
		b := int(encoded[index]) - 63
		if b < 0 || b > 63 {
			return 0, index, ErrMalformed
		}
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes coordinates with 5 decimal places of precision.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*4)
	prevLat, prevLng := 0, 0

	for _, c := range coords {
		lat := int(math.Round(c.Lat * 1e5))
		lng := int(math.Round(c.Lng * 1e5))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lng-prevLng)

		prevLat, prevLng = lat, lng
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// Distance returns the great-circle distance between two coordinates in meters.
func Distance(a, b Coordinate) float64 {
	return a.LatLng().Distance(b.LatLng()).Radians() * EarthRadiusMeters
}

// Length returns the total length of the path in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += Distance(coords[i-1], coords[i])
	}
	return total
}

// EveryNth keeps every n-th vertex starting with the first and always keeps
// the last one. n <= 1 returns the input unchanged.
func EveryNth(coords []Coordinate, n int) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if n <= 1 {
		return coords
	}

	sampled := make([]Coordinate, 0, len(coords)/n+2)
	for i := 0; i < len(coords); i += n {
		sampled = append(sampled, coords[i])
	}
	if (len(coords)-1)%n != 0 {
		sampled = append(sampled, coords[len(coords)-1])
	}
	return sampled
}

// Sample returns points spaced roughly intervalMeters apart along the path,
// interpolating inside long segments. The first and last vertices are always
// included.
func Sample(coords []Coordinate, intervalMeters float64) []Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return coords
	}

	sampled := []Coordinate{coords[0]}
	accumulated := 0.0

	for i := 1; i < len(coords); i++ {
		from, to := coords[i-1], coords[i]
		segment := Distance(from, to)
		travelled := 0.0

		for accumulated+segment-travelled >= intervalMeters {
			travelled += intervalMeters - accumulated
			accumulated = 0

			p := s2.Interpolate(travelled/segment, s2.PointFromLatLng(from.LatLng()), s2.PointFromLatLng(to.LatLng()))
			ll := s2.LatLngFromPoint(p)
			sampled = append(sampled, Coordinate{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()})
		}

		accumulated += segment - travelled
	}

	last := coords[len(coords)-1]
	if sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}
