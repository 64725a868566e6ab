package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swasthyaflow/intake/internal/domain/queue"
	"github.com/swasthyaflow/intake/internal/domain/routing"
	"github.com/swasthyaflow/intake/internal/platform/ml"
	"github.com/swasthyaflow/intake/pkg/clinical"
)

// stubClassifier always predicts the configured output.
type stubClassifier struct {
	out   ml.Output
	calls int
}

func (s *stubClassifier) Classify(in ml.Input) ml.Classification {
	s.calls++
	return ml.Classification{Vector: ml.DefaultEncoder().Encode(in), Output: s.out}
}

func (s *stubClassifier) Explain(c ml.Classification) ml.Explanation {
	return ml.Explanation{Method: ml.MethodUnavailable, Note: ml.NoteUnavailable, ModelConfidence: c.Output.Confidence}
}

type failingRouter struct{}

func (failingRouter) Suggest(context.Context, routing.SuggestRequest) ([]routing.Candidate, error) {
	return nil, errors.New("directory offline")
}

func newTestService(t *testing.T, clf Classifier) (*Service, *queue.Manager) {
	t.Helper()
	rules, err := LoadRules("")
	require.NoError(t, err)

	facilities, err := routing.LoadFacilities("")
	require.NoError(t, err)
	loads := routing.NewMemoryLoadStore(routing.Simulator{Seed: 42, Thresholds: routing.DefaultThresholds()})
	router := routing.NewService(routing.NewFileDirectory(facilities), loads,
		routing.NewRouter(loads, routing.RankOptions{}), routing.DefaultThresholds(), zerolog.Nop())

	tokens := queue.NewManager(queue.Config{}, zerolog.Nop())
	svc := NewService(NewRuleEngine(rules), clf, NewCombiner(DefaultOverrideConfidence), router, tokens, zerolog.Nop())
	return svc, tokens
}

func TestService_ChestPainAlwaysEmergency(t *testing.T) {
	clf := &stubClassifier{out: lowOutput()}
	svc, _ := newTestService(t, clf)

	res, err := svc.Process(context.Background(), IntakeRequest{
		Symptoms: []string{"Chest Pain", "cough"},
		Age:      30,
	})
	require.NoError(t, err)
	assert.Equal(t, clinical.RiskHigh, res.Decision.Risk)
	assert.Equal(t, clinical.DeptEmergency, res.Decision.Department)
	assert.Equal(t, 0.95, res.Decision.Confidence)
	require.NotNil(t, res.Decision.RuleTriggered)
	assert.Equal(t, "chest_pain_emergency", *res.Decision.RuleTriggered)
	assert.Equal(t, 1, clf.calls, "classifier still runs for the explanation")
	assert.Equal(t, DefaultEstimatedWait, res.EstimatedWaitMinutes)
	assert.Nil(t, res.PrimaryFacility)
	assert.Empty(t, res.AlternateFacilities)
}

func TestService_StrokeOverridesLowPrediction(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})

	res, err := svc.Process(context.Background(), IntakeRequest{
		Symptoms: []string{"speech_difficulty", "confusion"},
		Age:      72,
	})
	require.NoError(t, err)
	assert.Equal(t, clinical.RiskHigh, res.Decision.Risk)
	assert.Equal(t, clinical.DeptEmergency, res.Decision.Department)
	assert.Equal(t, "stroke_symptoms", *res.Decision.RuleTriggered)
}

func TestService_RespiratoryDistress(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})

	res, err := svc.Process(context.Background(), IntakeRequest{
		Symptoms: []string{"breathlessness"},
		Vitals:   clinical.VitalSigns{SpO2: clinical.Float(85)},
		Age:      45,
	})
	require.NoError(t, err)
	assert.Equal(t, clinical.RiskHigh, res.Decision.Risk)
	assert.Equal(t, clinical.DeptEmergency, res.Decision.Department)
	assert.Equal(t, "respiratory_distress", *res.Decision.RuleTriggered)
	assert.Equal(t, 0.95, res.Decision.Explanation.ModelConfidence)
}

func TestService_NoRuleUsesClassifier(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})

	res, err := svc.Process(context.Background(), IntakeRequest{Symptoms: []string{"rash"}, Age: 30})
	require.NoError(t, err)
	assert.Equal(t, clinical.RiskLow, res.Decision.Risk)
	assert.Equal(t, 0.9, res.Decision.Confidence)
	assert.Nil(t, res.Decision.RuleTriggered)
	assert.Nil(t, res.Decision.Explanation.RuleTriggered)
}

func TestService_HeuristicRuntime(t *testing.T) {
	rt := ml.NewRuntime(ml.RuntimeConfig{FallbackConfidence: ml.DefaultFallbackConfidence}, zerolog.Nop())
	svc, _ := newTestService(t, rt)

	res, err := svc.Process(context.Background(), IntakeRequest{Symptoms: []string{"fever"}, Age: 30})
	require.NoError(t, err)
	assert.Equal(t, clinical.RiskMedium, res.Decision.Risk)
	assert.Equal(t, ml.SourceHeuristic, res.Decision.Source)
	assert.Equal(t, ml.DefaultFallbackConfidence, res.Decision.Confidence)
	assert.Equal(t, ml.MethodUnavailable, res.Decision.Explanation.Method)
}

func TestService_RoutesAndIssuesToken(t *testing.T) {
	svc, tokens := newTestService(t, &stubClassifier{out: lowOutput()})
	ctx := context.Background()

	res, err := svc.Process(ctx, IntakeRequest{
		PatientID:  "P-1",
		Symptoms:   []string{"chest_pain"},
		Age:        55,
		Location:   &routing.GeoPoint{Latitude: 13.0827, Longitude: 80.2707},
		IssueToken: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.PrimaryFacility)
	assert.Len(t, res.AlternateFacilities, 1)
	assert.Equal(t, res.PrimaryFacility.EstimatedWaitMinutes, res.EstimatedWaitMinutes)

	require.NotNil(t, res.Token)
	assert.Equal(t, res.PrimaryFacility.FacilityID, res.Token.FacilityID)
	assert.Equal(t, clinical.DeptEmergency, res.Token.Department)
	assert.Equal(t, clinical.RiskHigh, res.Token.Risk)
	require.NotNil(t, res.Token.SessionID)
	assert.Equal(t, res.SessionID, *res.Token.SessionID)

	active, err := tokens.PatientActiveToken(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, res.Token.ID, active.ID)
}

func TestService_TokenAtGivenFacility(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})

	res, err := svc.Process(context.Background(), IntakeRequest{
		PatientID:  "P-2",
		Symptoms:   []string{"rash"},
		Age:        20,
		FacilityID: "PHC-001",
		IssueToken: true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Token)
	assert.Equal(t, "PHC-001", res.Token.FacilityID)
	assert.Equal(t, 1, res.Token.QueuePosition)
}

func TestService_TokenWithoutFacility(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})

	res, err := svc.Process(context.Background(), IntakeRequest{
		PatientID:  "P-3",
		Symptoms:   []string{"rash"},
		Age:        20,
		IssueToken: true,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Token)
}

func TestService_RouterError(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	svc := NewService(NewRuleEngine(rules), &stubClassifier{out: lowOutput()}, NewCombiner(0), failingRouter{}, nil, zerolog.Nop())

	_, err = svc.Process(context.Background(), IntakeRequest{
		Symptoms: []string{"rash"},
		Age:      20,
		Location: &routing.GeoPoint{Latitude: 1, Longitude: 1},
	})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidIntake))
}

func TestService_InvalidIntake(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})
	ctx := context.Background()

	bad := []IntakeRequest{
		{Age: 30},
		{Symptoms: []string{"fever"}, Age: -1},
		{Symptoms: []string{"fever"}, Age: 200},
		{Symptoms: []string{"fever"}, Age: 30, Vitals: clinical.VitalSigns{SpO2: clinical.Float(120)}},
		{Symptoms: []string{"fever"}, Age: 30, IssueToken: true},
		{Symptoms: []string{"fever"}, Age: 30, Location: &routing.GeoPoint{Latitude: 95}},
	}
	for i, req := range bad {
		_, err := svc.Process(ctx, req)
		assert.True(t, errors.Is(err, ErrInvalidIntake), "case %d: %v", i, err)
	}
}

func TestService_OnDecisionObservesProcessedDecisions(t *testing.T) {
	svc, _ := newTestService(t, &stubClassifier{out: lowOutput()})
	var seen []Decision
	svc.OnDecision(func(d Decision) { seen = append(seen, d) })

	_, err := svc.Process(context.Background(), IntakeRequest{Symptoms: []string{"chest_pain"}, Age: 50})
	require.NoError(t, err)
	_, err = svc.Process(context.Background(), IntakeRequest{Symptoms: []string{}, Age: 50})
	require.Error(t, err)

	require.Len(t, seen, 1, "rejected intakes are not observed")
	assert.Equal(t, clinical.RiskHigh, seen[0].Risk)
}
