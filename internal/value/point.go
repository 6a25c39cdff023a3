package value

import (
	"fmt"
	"math"
	"time"
)

// LatLon is a two-dimensional NEAREST point.
type LatLon struct {
	Lat float64
	Lon float64
}

func (p LatLon) Render() string { return fmt.Sprintf("%g, %g", p.Lat, p.Lon) }

// Point3D is a three-dimensional NEAREST point.
type Point3D struct {
	X float64
	Y float64
	Z float64
}

func (p Point3D) Render() string { return fmt.Sprintf("%g, %g, %g", p.X, p.Y, p.Z) }

// Distance computes the NEAREST-axis distance metric from spec §4.2:
// absolute difference for numbers and dates, euclidean for LatLon/Point3D.
// a and b must hold the same concrete point representation.
func Distance(a, b Value) (float64, error) {
	switch a.Type {
	case TypeLong:
		return math.Abs(float64(a.i64 - b.i64)), nil
	case TypeDouble:
		return math.Abs(a.f64 - b.f64), nil
	case TypeDate:
		return math.Abs(a.date.Sub(b.date).Seconds()), nil
	case TypeComparable:
		switch av := a.cmp.(type) {
		case LatLon:
			bv, ok := b.cmp.(LatLon)
			if !ok {
				return 0, fmt.Errorf("distance requires two LatLon values")
			}
			return math.Hypot(av.Lat-bv.Lat, av.Lon-bv.Lon), nil
		case Point3D:
			bv, ok := b.cmp.(Point3D)
			if !ok {
				return 0, fmt.Errorf("distance requires two Point3D values")
			}
			dx, dy, dz := av.X-bv.X, av.Y-bv.Y, av.Z-bv.Z
			return math.Sqrt(dx*dx + dy*dy + dz*dz), nil
		case time.Time:
			bv, ok := b.cmp.(time.Time)
			if !ok {
				return 0, fmt.Errorf("distance requires two date values")
			}
			return math.Abs(av.Sub(bv).Seconds()), nil
		default:
			return 0, fmt.Errorf("unsupported COMPARABLE value for NEAREST distance: %T", av)
		}
	default:
		return 0, fmt.Errorf("unsupported value type %s for NEAREST distance", a.Type)
	}
}
