// Package triage turns a patient presentation into a triage decision, routes
// the patient to a facility and optionally queues them there.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/internal/domain/queue"
	"github.com/swasthyaflow/intake/internal/domain/routing"
	"github.com/swasthyaflow/intake/internal/platform/ml"
)

var ErrInvalidIntake = errors.New("invalid intake")

// Classifier predicts and explains. *ml.Runtime implements it.
type Classifier interface {
	Classify(in ml.Input) ml.Classification
	Explain(c ml.Classification) ml.Explanation
}

// Router suggests facilities. *routing.Service implements it.
type Router interface {
	Suggest(ctx context.Context, req routing.SuggestRequest) ([]routing.Candidate, error)
}

// TokenIssuer queues a patient. *queue.Manager implements it.
type TokenIssuer interface {
	Issue(ctx context.Context, req queue.IssueRequest) (*queue.Token, error)
}

type Service struct {
	rules    *RuleEngine
	clf      Classifier
	combiner *Combiner
	router   Router
	tokens   TokenIssuer
	log      zerolog.Logger
	now      func() time.Time
	observe  func(Decision)
}

// NewService wires the pipeline. router and tokens may be nil, which
// disables routing and token issue respectively.
func NewService(rules *RuleEngine, clf Classifier, combiner *Combiner, router Router, tokens TokenIssuer, log zerolog.Logger) *Service {
	return &Service{
		rules:    rules,
		clf:      clf,
		combiner: combiner,
		router:   router,
		tokens:   tokens,
		log:      log.With().Str("component", "triage").Logger(),
		now:      time.Now,
	}
}

// OnDecision registers fn to be called with every decision Process makes.
func (s *Service) OnDecision(fn func(Decision)) {
	s.observe = fn
}

// Rules returns the active override table.
func (s *Service) Rules() []Rule {
	return s.rules.Rules()
}

// Decide runs rules, classifier, explainer and combiner for one presentation.
func (s *Service) Decide(in ml.Input) Decision {
	match := s.rules.Evaluate(in.Symptoms, in.Vitals, in.Age)
	cls := s.clf.Classify(in)
	expl := s.clf.Explain(cls)
	return s.combiner.Decide(match, cls.Output, expl)
}

// Process is the full intake pipeline.
func (s *Service) Process(ctx context.Context, req IntakeRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntake, err)
	}

	decision := s.Decide(req.input())
	res := &Result{
		SessionID:            uuid.New(),
		PatientID:            req.PatientID,
		Decision:             decision,
		AlternateFacilities:  []routing.Candidate{},
		EstimatedWaitMinutes: DefaultEstimatedWait,
		CreatedAt:            s.now().UTC(),
	}

	if req.Location != nil && s.router != nil {
		candidates, err := s.router.Suggest(ctx, routing.SuggestRequest{
			Location:      *req.Location,
			Department:    decision.Department,
			MaxDistanceKm: req.MaxDistanceKm,
		})
		if err != nil {
			return nil, fmt.Errorf("route patient: %w", err)
		}
		if len(candidates) > 0 {
			primary := candidates[0]
			res.PrimaryFacility = &primary
			res.EstimatedWaitMinutes = primary.EstimatedWaitMinutes
			res.AlternateFacilities = candidates[1:]
		}
	}

	if req.IssueToken && s.tokens != nil {
		facilityID := req.FacilityID
		if facilityID == "" && res.PrimaryFacility != nil {
			facilityID = res.PrimaryFacility.FacilityID
		}
		if facilityID == "" {
			s.log.Warn().Str("session_id", res.SessionID.String()).Msg("token requested but no facility known")
		} else {
			sessionID := res.SessionID
			tok, err := s.tokens.Issue(ctx, queue.IssueRequest{
				PatientID:  req.PatientID,
				SessionID:  &sessionID,
				Risk:       decision.Risk,
				Department: decision.Department,
				FacilityID: facilityID,
			})
			if err != nil {
				return nil, fmt.Errorf("issue token: %w", err)
			}
			res.Token = tok
		}
	}

	ev := s.log.Info().
		Str("session_id", res.SessionID.String()).
		Str("risk_level", string(decision.Risk)).
		Str("department", decision.Department).
		Float64("confidence", decision.Confidence).
		Str("source", decision.Source).
		Str("explanation", decision.Explanation.Method)
	if decision.RuleTriggered != nil {
		ev = ev.Str("rule", *decision.RuleTriggered)
	}
	ev.Msg("triage decided")
	if s.observe != nil {
		s.observe(decision)
	}
	return res, nil
}
