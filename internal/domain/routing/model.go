package routing

import (
	"errors"
	"time"
)

var (
	ErrFacilityNotFound  = errors.New("facility not found")
	ErrInvalidLoad       = errors.New("invalid department load")
	ErrInvalidFacilities = errors.New("invalid facility directory")
	ErrInvalidSuggest    = errors.New("invalid routing request")
)

// GeoPoint is a WGS84 coordinate in decimal degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Facility is a directory record. Coordinates are optional; a facility
// without them cannot be ranked by distance.
type Facility struct {
	ID            string   `json:"id" yaml:"id"`
	Code          string   `json:"code,omitempty" yaml:"code"`
	Name          string   `json:"name" yaml:"name"`
	Type          string   `json:"hospital_type,omitempty" yaml:"type"`
	District      string   `json:"district,omitempty" yaml:"district"`
	State         string   `json:"state,omitempty" yaml:"state"`
	Address       string   `json:"address,omitempty" yaml:"address"`
	Latitude      *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude     *float64 `json:"longitude,omitempty" yaml:"longitude"`
	TotalBeds     int      `json:"total_beds" yaml:"total_beds"`
	EmergencyBeds int      `json:"emergency_beds" yaml:"emergency_beds"`
	Departments   []string `json:"departments" yaml:"departments"`
	ContactPhone  string   `json:"contact_phone,omitempty" yaml:"contact_phone"`
	Active        bool     `json:"is_active" yaml:"active"`
}

// HasDepartment reports whether the facility offers dept.
func (f *Facility) HasDepartment(dept string) bool {
	for _, d := range f.Departments {
		if d == dept {
			return true
		}
	}
	return false
}

// Location returns the facility coordinates, if both are known.
func (f *Facility) Location() (GeoPoint, bool) {
	if f.Latitude == nil || f.Longitude == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Latitude: *f.Latitude, Longitude: *f.Longitude}, true
}

// FacilityFilter narrows a directory search. Empty fields match everything.
type FacilityFilter struct {
	State      string
	District   string
	Type       string
	Department string
	ActiveOnly bool
}

func (ff FacilityFilter) matches(f *Facility) bool {
	if ff.ActiveOnly && !f.Active {
		return false
	}
	if ff.State != "" && f.State != ff.State {
		return false
	}
	if ff.District != "" && f.District != ff.District {
		return false
	}
	if ff.Type != "" && f.Type != ff.Type {
		return false
	}
	if ff.Department != "" && !f.HasDepartment(ff.Department) {
		return false
	}
	return true
}

// LoadStatus is the crowding tier of a department.
type LoadStatus string

const (
	StatusNormal   LoadStatus = "normal"
	StatusBusy     LoadStatus = "busy"
	StatusCritical LoadStatus = "critical"
)

// DepartmentLoad is the live occupancy of one department.
type DepartmentLoad struct {
	Department      string     `json:"department"`
	CurrentPatients int        `json:"current_patients"`
	Capacity        int        `json:"max_capacity"`
	LoadPercentage  float64    `json:"load_percentage"`
	AvgWaitMinutes  int        `json:"avg_wait_minutes"`
	Status          LoadStatus `json:"status"`
}

// FacilityLoad is a point-in-time snapshot of every tracked department.
type FacilityLoad struct {
	FacilityID    string           `json:"hospital_id"`
	Departments   []DepartmentLoad `json:"departments"`
	OverallLoad   float64          `json:"overall_load"`
	TotalPatients int              `json:"total_patients"`
	TotalCapacity int              `json:"total_capacity"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Department returns the load record for dept, or the default record for a
// department the snapshot does not track.
func (fl *FacilityLoad) Department(dept string) DepartmentLoad {
	for _, d := range fl.Departments {
		if d.Department == dept {
			return d
		}
	}
	return DepartmentLoad{
		Department:     dept,
		Capacity:       20,
		AvgWaitMinutes: 15,
		Status:         StatusNormal,
	}
}

func (fl *FacilityLoad) clone() *FacilityLoad {
	out := *fl
	out.Departments = append([]DepartmentLoad(nil), fl.Departments...)
	return &out
}

// Candidate is a ranked routing suggestion.
type Candidate struct {
	FacilityID           string     `json:"hospital_id"`
	Name                 string     `json:"name"`
	Type                 string     `json:"hospital_type"`
	DistanceKm           float64    `json:"distance_km"`
	LoadPercentage       float64    `json:"current_load"`
	EstimatedWaitMinutes int        `json:"estimated_wait_minutes"`
	Status               LoadStatus `json:"status"`
	Score                float64    `json:"score"`
	Departments          []string   `json:"departments_available"`
	Address              string     `json:"address"`
	ContactPhone         string     `json:"contact_phone"`
}

// SuggestRequest asks for facilities offering Department near Location.
type SuggestRequest struct {
	Location          GeoPoint `json:"location"`
	Department        string   `json:"required_department"`
	MaxDistanceKm     float64  `json:"max_distance_km"`
	MaxResults        int      `json:"max_results"`
	ExcludeFacilityID string   `json:"exclude_hospital_id,omitempty"`
}
