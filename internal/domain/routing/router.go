package routing

import (
	"context"
	"math"
	"sort"
)

const (
	earthRadiusKm = 6371.0

	DefaultMaxDistanceKm = 50.0
	DefaultMaxResults    = 5

	distanceWeight = 0.4
	loadWeight     = 0.4
	waitWeight     = 0.2
)

// Haversine returns the great-circle distance between a and b in kilometres.
func Haversine(a, b GeoPoint) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Score is the composite routing cost of a facility. Lower is better.
func Score(distanceKm, maxDistanceKm, loadPercentage float64, avgWaitMinutes int) float64 {
	wait := math.Min(float64(avgWaitMinutes)/60, 1)
	return distanceWeight*(distanceKm/maxDistanceKm) +
		loadWeight*(loadPercentage/100) +
		waitWeight*wait
}

// RankOptions bounds a ranking. Zero values take the router defaults.
type RankOptions struct {
	MaxDistanceKm     float64
	MaxResults        int
	ExcludeFacilityID string
}

// Router ranks facilities by distance and current department load.
type Router struct {
	loads    LoadStore
	defaults RankOptions
}

func NewRouter(loads LoadStore, defaults RankOptions) *Router {
	if defaults.MaxDistanceKm <= 0 {
		defaults.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if defaults.MaxResults <= 0 {
		defaults.MaxResults = DefaultMaxResults
	}
	return &Router{loads: loads, defaults: defaults}
}

// Rank filters facilities to those that are active, located, offer dept and
// lie within the distance limit, then orders them by Score with facility id
// breaking ties. No match is an empty result, not an error.
func (r *Router) Rank(ctx context.Context, origin GeoPoint, dept string, facilities []Facility, opts RankOptions) ([]Candidate, error) {
	if opts.MaxDistanceKm <= 0 {
		opts.MaxDistanceKm = r.defaults.MaxDistanceKm
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = r.defaults.MaxResults
	}

	out := []Candidate{}
	for i := range facilities {
		f := &facilities[i]
		if !f.Active || f.ID == opts.ExcludeFacilityID || !f.HasDepartment(dept) {
			continue
		}
		loc, ok := f.Location()
		if !ok {
			continue
		}
		dist := Haversine(origin, loc)
		if dist > opts.MaxDistanceKm {
			continue
		}

		snap, err := r.loads.Snapshot(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		load := snap.Department(dept)

		out = append(out, Candidate{
			FacilityID:           f.ID,
			Name:                 f.Name,
			Type:                 f.Type,
			DistanceKm:           round1(dist),
			LoadPercentage:       load.LoadPercentage,
			EstimatedWaitMinutes: load.AvgWaitMinutes,
			Status:               load.Status,
			Score:                Score(dist, opts.MaxDistanceKm, load.LoadPercentage, load.AvgWaitMinutes),
			Departments:          f.Departments,
			Address:              f.Address,
			ContactPhone:         f.ContactPhone,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].FacilityID < out[j].FacilityID
	})
	if len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out, nil
}

var baseWaitMinutes = map[string]int{
	"Emergency":        5,
	"General Medicine": 20,
	"Cardiology":       15,
	"Pulmonology":      15,
	"Neurology":        20,
	"Gastroenterology": 25,
	"Orthopedics":      30,
	"Surgery":          25,
}

// EstimateWait scales the department's base consultation wait by its load
// fraction.
func EstimateWait(dept string, loadFraction float64) int {
	base, ok := baseWaitMinutes[dept]
	if !ok {
		base = 20
	}
	return int(float64(base) * (1 + loadFraction))
}
