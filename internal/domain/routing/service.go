package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

type Service struct {
	dir        Directory
	loads      LoadStore
	router     *Router
	thresholds Thresholds
	log        zerolog.Logger
}

func NewService(dir Directory, loads LoadStore, router *Router, thresholds Thresholds, log zerolog.Logger) *Service {
	return &Service{
		dir:        dir,
		loads:      loads,
		router:     router,
		thresholds: thresholds,
		log:        log.With().Str("component", "routing").Logger(),
	}
}

func (s *Service) ListFacilities(ctx context.Context, f FacilityFilter, limit, offset int) ([]Facility, int, error) {
	return s.dir.Search(ctx, f, limit, offset)
}

func (s *Service) GetFacility(ctx context.Context, id string) (*Facility, error) {
	return s.dir.Get(ctx, id)
}

// FacilityLoad returns the load snapshot of a known facility.
func (s *Service) FacilityLoad(ctx context.Context, id string) (*FacilityLoad, error) {
	if _, err := s.dir.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.loads.Snapshot(ctx, id)
}

func (s *Service) DepartmentLoad(ctx context.Context, id, dept string) (DepartmentLoad, error) {
	snap, err := s.FacilityLoad(ctx, id)
	if err != nil {
		return DepartmentLoad{}, err
	}
	return snap.Department(dept), nil
}

func (s *Service) UpdateLoad(ctx context.Context, id, dept string, patients, capacity int) (*DepartmentLoad, error) {
	if _, err := s.dir.Get(ctx, id); err != nil {
		return nil, err
	}
	d, err := s.loads.UpdateLoad(ctx, id, dept, patients, capacity)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("hospital_id", id).
		Str("department", dept).
		Int("current_patients", d.CurrentPatients).
		Int("max_capacity", d.Capacity).
		Str("status", string(d.Status)).
		Msg("department load updated")
	return d, nil
}

// ShouldSuggestAlternate reports whether a department is loaded past the
// high threshold.
func (s *Service) ShouldSuggestAlternate(ctx context.Context, id, dept string) (bool, DepartmentLoad, error) {
	d, err := s.DepartmentLoad(ctx, id, dept)
	if err != nil {
		return false, DepartmentLoad{}, err
	}
	return d.LoadPercentage/100 > s.thresholds.High, d, nil
}

// Suggest ranks active directory facilities offering the requested department.
func (s *Service) Suggest(ctx context.Context, req SuggestRequest) ([]Candidate, error) {
	if strings.TrimSpace(req.Department) == "" {
		return nil, fmt.Errorf("%w: required_department is required", ErrInvalidSuggest)
	}
	if !clinical.IsDepartment(req.Department) {
		return nil, fmt.Errorf("%w: unknown department %q", ErrInvalidSuggest, req.Department)
	}
	if req.Location.Latitude < -90 || req.Location.Latitude > 90 ||
		req.Location.Longitude < -180 || req.Location.Longitude > 180 {
		return nil, fmt.Errorf("%w: location out of range", ErrInvalidSuggest)
	}

	facilities, _, err := s.dir.Search(ctx, FacilityFilter{Department: req.Department, ActiveOnly: true}, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("search facilities: %w", err)
	}
	candidates, err := s.router.Rank(ctx, req.Location, req.Department, facilities, RankOptions{
		MaxDistanceKm:     req.MaxDistanceKm,
		MaxResults:        req.MaxResults,
		ExcludeFacilityID: req.ExcludeFacilityID,
	})
	if err != nil {
		return nil, fmt.Errorf("rank facilities: %w", err)
	}
	s.log.Debug().
		Str("department", req.Department).
		Int("considered", len(facilities)).
		Int("candidates", len(candidates)).
		Msg("facilities ranked")
	return candidates, nil
}
