package routing

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/swasthyaflow/intake/pkg/clinical"
)

// Directory supplies facility records. The router only reads it.
type Directory interface {
	// Search returns facilities matching f ordered by id, and the total number
	// of matches. A non-positive limit returns every match.
	Search(ctx context.Context, f FacilityFilter, limit, offset int) ([]Facility, int, error)
	Get(ctx context.Context, id string) (*Facility, error)
}

//go:embed facilities_default.yaml
var defaultFacilities []byte

type facilityFile struct {
	Facilities []Facility `yaml:"facilities"`
}

// ParseFacilities decodes and validates a YAML facility directory.
func ParseFacilities(raw []byte) ([]Facility, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var ff facilityFile
	if err := dec.Decode(&ff); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFacilities, err)
	}
	if err := validateFacilities(ff.Facilities); err != nil {
		return nil, err
	}
	return ff.Facilities, nil
}

// LoadFacilities reads a facility directory file. An empty path yields the
// built-in directory.
func LoadFacilities(path string) ([]Facility, error) {
	if path == "" {
		return ParseFacilities(defaultFacilities)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facility directory %s: %w", path, err)
	}
	return ParseFacilities(raw)
}

func validateFacilities(fs []Facility) error {
	seen := make(map[string]bool, len(fs))
	for i, f := range fs {
		if f.ID == "" || f.Name == "" {
			return fmt.Errorf("%w: facility %d needs id and name", ErrInvalidFacilities, i)
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: duplicate facility id %q", ErrInvalidFacilities, f.ID)
		}
		seen[f.ID] = true
		if (f.Latitude == nil) != (f.Longitude == nil) {
			return fmt.Errorf("%w: facility %q has only one coordinate", ErrInvalidFacilities, f.ID)
		}
		if f.Latitude != nil && (*f.Latitude < -90 || *f.Latitude > 90 || *f.Longitude < -180 || *f.Longitude > 180) {
			return fmt.Errorf("%w: facility %q coordinates out of range", ErrInvalidFacilities, f.ID)
		}
		for _, d := range f.Departments {
			if !clinical.IsDepartment(d) {
				return fmt.Errorf("%w: facility %q lists unknown department %q", ErrInvalidFacilities, f.ID, d)
			}
		}
	}
	return nil
}

// FileDirectory is an immutable in-memory directory.
type FileDirectory struct {
	facilities []Facility
	byID       map[string]int
}

func NewFileDirectory(fs []Facility) *FileDirectory {
	sorted := append([]Facility(nil), fs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	byID := make(map[string]int, len(sorted))
	for i, f := range sorted {
		byID[f.ID] = i
	}
	return &FileDirectory{facilities: sorted, byID: byID}
}

func (d *FileDirectory) Search(_ context.Context, f FacilityFilter, limit, offset int) ([]Facility, int, error) {
	var matched []Facility
	for i := range d.facilities {
		if f.matches(&d.facilities[i]) {
			matched = append(matched, d.facilities[i])
		}
	}
	total := len(matched)
	if offset > total {
		offset = total
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (d *FileDirectory) Get(_ context.Context, id string) (*Facility, error) {
	i, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFacilityNotFound, id)
	}
	f := d.facilities[i]
	return &f, nil
}
