package routing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

const (
	DefaultHighLoadThreshold     = 0.8
	DefaultCriticalLoadThreshold = 0.95
)

// LoadStore holds per-facility department load snapshots. Snapshots for a
// facility nobody has reported on are simulated on first access.
type LoadStore interface {
	Snapshot(ctx context.Context, facilityID string) (*FacilityLoad, error)
	UpdateLoad(ctx context.Context, facilityID, department string, patients, capacity int) (*DepartmentLoad, error)
}

// Thresholds map a load fraction to a status tier. A fraction strictly above
// High is busy, strictly above Critical is critical.
type Thresholds struct {
	High     float64
	Critical float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: DefaultHighLoadThreshold, Critical: DefaultCriticalLoadThreshold}
}

func (t Thresholds) Status(fraction float64) LoadStatus {
	switch {
	case fraction > t.Critical:
		return StatusCritical
	case fraction > t.High:
		return StatusBusy
	default:
		return StatusNormal
	}
}

// simulatedDepartments are the departments a simulated snapshot tracks, with
// their bed capacity.
var simulatedDepartments = []struct {
	name     string
	capacity int
}{
	{"Emergency", 20},
	{"General Medicine", 50},
	{"Cardiology", 15},
	{"Pulmonology", 15},
	{"Neurology", 10},
	{"Gastroenterology", 15},
	{"Orthopedics", 20},
	{"Surgery", 25},
}

// Simulator fabricates plausible load snapshots. Each facility draws from its
// own generator seeded from Seed and the facility id, so a snapshot does not
// depend on the order facilities are first seen.
type Simulator struct {
	Seed       int64
	Thresholds Thresholds
}

func (s Simulator) Simulate(facilityID string, now time.Time) *FacilityLoad {
	h := fnv.New64a()
	h.Write([]byte(facilityID))
	rng := rand.New(rand.NewSource(s.Seed ^ int64(h.Sum64())))

	fl := &FacilityLoad{FacilityID: facilityID, Timestamp: now}
	for _, d := range simulatedDepartments {
		frac := 0.3 + rng.Float64()*0.65
		current := int(float64(d.capacity) * frac)
		fl.Departments = append(fl.Departments, DepartmentLoad{
			Department:      d.name,
			CurrentPatients: current,
			Capacity:        d.capacity,
			LoadPercentage:  round1(frac * 100),
			AvgWaitMinutes:  int(20*frac) + 5 + rng.Intn(11),
			Status:          s.Thresholds.Status(frac),
		})
	}
	fl.recomputeTotals()
	return fl
}

func (fl *FacilityLoad) recomputeTotals() {
	fl.TotalPatients, fl.TotalCapacity = 0, 0
	for _, d := range fl.Departments {
		fl.TotalPatients += d.CurrentPatients
		fl.TotalCapacity += d.Capacity
	}
	fl.OverallLoad = 0
	if fl.TotalCapacity > 0 {
		fl.OverallLoad = round1(float64(fl.TotalPatients) / float64(fl.TotalCapacity) * 100)
	}
}

// applyUpdate sets a department's counts and recomputes its load and status
// immediately. A department the snapshot does not track yet is added with the
// default wait.
func applyUpdate(fl *FacilityLoad, department string, patients, capacity int, t Thresholds, now time.Time) (DepartmentLoad, error) {
	if capacity <= 0 {
		return DepartmentLoad{}, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidLoad, capacity)
	}
	if patients < 0 {
		return DepartmentLoad{}, fmt.Errorf("%w: patient count must not be negative, got %d", ErrInvalidLoad, patients)
	}
	if department == "" {
		return DepartmentLoad{}, fmt.Errorf("%w: department is required", ErrInvalidLoad)
	}

	idx := -1
	for i := range fl.Departments {
		if fl.Departments[i].Department == department {
			idx = i
			break
		}
	}
	if idx < 0 {
		fl.Departments = append(fl.Departments, fl.Department(department))
		idx = len(fl.Departments) - 1
	}

	d := &fl.Departments[idx]
	frac := float64(patients) / float64(capacity)
	d.CurrentPatients = patients
	d.Capacity = capacity
	d.LoadPercentage = round1(frac * 100)
	d.Status = t.Status(frac)

	fl.recomputeTotals()
	fl.Timestamp = now
	return *d, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// MemoryLoadStore keeps snapshots in process memory.
type MemoryLoadStore struct {
	sim Simulator
	now func() time.Time

	mu    sync.Mutex
	loads map[string]*FacilityLoad
}

func NewMemoryLoadStore(sim Simulator) *MemoryLoadStore {
	return &MemoryLoadStore{
		sim:   sim,
		now:   time.Now,
		loads: make(map[string]*FacilityLoad),
	}
}

// loadLocked returns the snapshot for facilityID, simulating it if needed.
// Caller holds s.mu.
func (s *MemoryLoadStore) loadLocked(facilityID string) *FacilityLoad {
	fl, ok := s.loads[facilityID]
	if !ok {
		fl = s.sim.Simulate(facilityID, s.now().UTC())
		s.loads[facilityID] = fl
	}
	return fl
}

func (s *MemoryLoadStore) Snapshot(_ context.Context, facilityID string) (*FacilityLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(facilityID).clone(), nil
}

func (s *MemoryLoadStore) UpdateLoad(_ context.Context, facilityID, department string, patients, capacity int) (*DepartmentLoad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := applyUpdate(s.loadLocked(facilityID), department, patients, capacity, s.sim.Thresholds, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return &d, nil
}
