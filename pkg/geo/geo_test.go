package geo

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

// One degree of latitude along a meridian.
const oneDegreeNM = EarthRadiusNM * math.Pi / 180

func TestDistanceNM_KnownValues(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tol                    float64
	}{
		{"same point", 44.8851, -93.2144, 44.8851, -93.2144, 0, 1e-9},
		{"one degree north", 44.8851, -93.2144, 45.8851, -93.2144, oneDegreeNM, 0.01},
		{"one degree east at equator", 0, 0, 0, 1, oneDegreeNM, 0.01},
		{"half degree south", 45, -93, 44.5, -93, oneDegreeNM / 2, 0.01},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceNM(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("DistanceNM = %f; want %f ± %f", got, tt.want, tt.tol)
			}
		})
	}
}

func TestBearingDeg_Cardinal(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"due north", 44, -93, 45, -93, 0},
		{"due south", 45, -93, 44, -93, 180},
		{"due east at equator", 0, 0, 0, 1, 90},
		{"due west at equator", 0, 1, 0, 0, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BearingDeg(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("BearingDeg = %f; want %f", got, tt.want)
			}
		})
	}
}

func TestDistanceNM_Symmetric(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat1 := rapid.Float64Range(-85, 85).Draw(t, "lat1")
		lon1 := rapid.Float64Range(-180, 180).Draw(t, "lon1")
		lat2 := rapid.Float64Range(-85, 85).Draw(t, "lat2")
		lon2 := rapid.Float64Range(-180, 180).Draw(t, "lon2")

		d1 := DistanceNM(lat1, lon1, lat2, lon2)
		d2 := DistanceNM(lat2, lon2, lat1, lon1)
		if math.Abs(d1-d2) > 1e-6 {
			t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
		}
		if d1 < 0 {
			t.Fatalf("negative distance %f", d1)
		}
	})
}

func TestBox_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lat := rapid.Float64Range(-60, 60).Draw(t, "lat")
		lon := rapid.Float64Range(-180, 180).Draw(t, "lon")
		radius := rapid.Float64Range(1, 250).Draw(t, "radius")

		b1 := Box(lat, lon, radius)
		b2 := Box(lat, lon, radius)
		if b1 != b2 {
			t.Fatalf("box not deterministic: %+v vs %+v", b1, b2)
		}
		if !b1.Contains(lat, lon) {
			t.Fatalf("box %+v does not contain its own center (%f, %f)", b1, lat, lon)
		}
		if b1.LatMax-b1.LatMin <= 0 || b1.LonMax-b1.LonMin <= 0 {
			t.Fatalf("degenerate box %+v", b1)
		}
	})
}

func TestBox_KnownDeltas(t *testing.T) {
	// 60 NM is one degree of latitude; at the equator also one of longitude.
	b := Box(0, 0, 60)
	if math.Abs(b.LatMax-1) > 1e-9 || math.Abs(b.LatMin+1) > 1e-9 {
		t.Errorf("latitude delta = [%f, %f]; want ±1", b.LatMin, b.LatMax)
	}
	if math.Abs(b.LonMax-1) > 1e-9 || math.Abs(b.LonMin+1) > 1e-9 {
		t.Errorf("longitude delta = [%f, %f]; want ±1", b.LonMin, b.LonMax)
	}

	// At 60°N the longitude span doubles (cos 60° = 0.5).
	b = Box(60, 0, 60)
	if math.Abs(b.LonMax-2) > 1e-9 {
		t.Errorf("longitude delta at 60N = %f; want 2", b.LonMax)
	}
}

func TestContains(t *testing.T) {
	b := BoundingBox{LatMin: 44, LatMax: 46, LonMin: -94, LonMax: -92}
	if !b.Contains(45, -93) {
		t.Error("center should be inside")
	}
	if b.Contains(47, -93) {
		t.Error("north of box should be outside")
	}
	if b.Contains(45, -91) {
		t.Error("east of box should be outside")
	}
}
