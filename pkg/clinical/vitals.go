package clinical

import "fmt"

// Vital sign names as they appear in rule tables and feature names.
const (
	VitalSystolic        = "bp_systolic"
	VitalDiastolic       = "bp_diastolic"
	VitalHeartRate       = "heart_rate"
	VitalTemperature     = "temperature"
	VitalSpO2            = "spo2"
	VitalRespiratoryRate = "respiratory_rate"
)

// VitalNames lists the vital signs in feature order.
var VitalNames = []string{
	VitalSystolic, VitalDiastolic, VitalHeartRate,
	VitalTemperature, VitalSpO2, VitalRespiratoryRate,
}

// VitalSigns are the vitals reported at intake. Any field may be missing.
type VitalSigns struct {
	BPSystolic      *float64 `json:"bp_systolic,omitempty" yaml:"bp_systolic,omitempty"`
	BPDiastolic     *float64 `json:"bp_diastolic,omitempty" yaml:"bp_diastolic,omitempty"`
	HeartRate       *float64 `json:"heart_rate,omitempty" yaml:"heart_rate,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	SpO2            *float64 `json:"spo2,omitempty" yaml:"spo2,omitempty"`
	RespiratoryRate *float64 `json:"respiratory_rate,omitempty" yaml:"respiratory_rate,omitempty"`
}

// vitalBounds are the accepted physiological ranges.
var vitalBounds = map[string][2]float64{
	VitalSystolic:        {50, 260},
	VitalDiastolic:       {30, 160},
	VitalHeartRate:       {20, 250},
	VitalTemperature:     {90, 110},
	VitalSpO2:            {40, 100},
	VitalRespiratoryRate: {4, 60},
}

// Get returns the named vital and whether it was reported.
func (v VitalSigns) Get(name string) (float64, bool) {
	var p *float64
	switch name {
	case VitalSystolic:
		p = v.BPSystolic
	case VitalDiastolic:
		p = v.BPDiastolic
	case VitalHeartRate:
		p = v.HeartRate
	case VitalTemperature:
		p = v.Temperature
	case VitalSpO2:
		p = v.SpO2
	case VitalRespiratoryRate:
		p = v.RespiratoryRate
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// GetOr returns the named vital or def when missing.
func (v VitalSigns) GetOr(name string, def float64) float64 {
	if x, ok := v.Get(name); ok {
		return x
	}
	return def
}

// Validate checks every reported vital against its physiological range.
func (v VitalSigns) Validate() error {
	for _, name := range VitalNames {
		x, ok := v.Get(name)
		if !ok {
			continue
		}
		b := vitalBounds[name]
		if x < b[0] || x > b[1] {
			return fmt.Errorf("%s %.1f out of range [%.0f, %.0f]", name, x, b[0], b[1])
		}
	}
	return nil
}

// IsVital reports whether name is a known vital sign.
func IsVital(name string) bool {
	_, ok := vitalBounds[name]
	return ok
}

// Float returns a pointer to x, for building VitalSigns literals.
func Float(x float64) *float64 { return &x }
