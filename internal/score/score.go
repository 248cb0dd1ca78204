package score

import (
	"math"
	"sort"
	"strings"
)

// EarthRadiusKM is Earth's radius in kilometers for the Haversine calculation.
const EarthRadiusKM = 6371.0

// Locality weights: a street match implies close proximity, so it outweighs
// a city match.
const (
	cityMatchScore   = 2
	streetMatchScore = 3
)

// Workshop is the scorer's view of one workshop offering the requested
// emergency service. Latitude/Longitude are nil when the workshop has no
// known coordinates.
type Workshop struct {
	ID        int64    `json:"workshopId"`
	Name      string   `json:"name"`
	Rate      float64  `json:"rate"`
	Price     float64  `json:"price"`
	City      string   `json:"city"`
	Street    string   `json:"street"`
	Latitude  *float64 `json:"-"`
	Longitude *float64 `json:"-"`
}

// Location is the customer's position: textual address parts plus optional
// coordinates.
type Location struct {
	City      string
	Street    string
	Latitude  *float64
	Longitude *float64
}

// Candidate is a workshop annotated with its rank inputs.
type Candidate struct {
	Workshop
	Score int `json:"score"`
	// DistanceKM is nil when either side lacks coordinates.
	DistanceKM *float64 `json:"distanceKm"`
}

// HaversineKM calculates the great-circle distance between two points on
// Earth in kilometers.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

// Rank scores and orders workshops for a customer location: descending score,
// then ascending distance, workshops without a known distance last. The
// result is advisory; the caller decides the final dispatch order.
func Rank(workshops []Workshop, loc Location) []Candidate {
	candidates := make([]Candidate, 0, len(workshops))
	for _, w := range workshops {
		c := Candidate{Workshop: w}

		if loc.City != "" && strings.EqualFold(w.City, loc.City) {
			c.Score += cityMatchScore
		}
		if loc.Street != "" && strings.EqualFold(w.Street, loc.Street) {
			c.Score += streetMatchScore
		}

		if loc.Latitude != nil && loc.Longitude != nil && w.Latitude != nil && w.Longitude != nil {
			d := HaversineKM(*loc.Latitude, *loc.Longitude, *w.Latitude, *w.Longitude)
			c.DistanceKM = &d
		}

		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		switch {
		case a.DistanceKM != nil && b.DistanceKM != nil:
			return *a.DistanceKM < *b.DistanceKM
		case a.DistanceKM != nil:
			return true
		case b.DistanceKM != nil:
			return false
		default:
			return false
		}
	})

	return candidates
}
