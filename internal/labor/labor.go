// Package labor runs the hiring pipeline: firms post jobs, worker slots
// apply to their best-fitting postings, firms extend ranked offers, and a
// round-based resolution settles who works where. Each worker ends up with
// at most one job per month.
package labor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("labor: job not found")

	// ErrInvalidJob is returned when a posting fails validation.
	ErrInvalidJob = errors.New("labor: invalid job posting")
)

// Offer resolution policies.
const (
	PolicyBestLoss    = "best_loss"
	PolicyHighestWage = "highest_wage"
)

// Tuning defaults. A loss above the threshold means the worker is too far
// from the posting's trait profile to be worth an application.
const (
	DefaultLossThreshold   = 3000.0
	DefaultMaxApplications = 3
	maxResolutionRounds    = 100

	// dampingFactor discounts the penalty when the worker exceeds the
	// required trait level. Overqualification costs a fifth of what
	// underqualification does.
	dampingFactor = 0.2

	// wagePenaltyFactor converts unmet wage expectations into loss points
	// when ranking applicants for offers.
	wagePenaltyFactor = 0.5
)

// Market is the labor matching actor. One mutex serializes every operation.
type Market struct {
	mu sync.Mutex

	jobs    map[string]*model.Job
	workers map[string]*model.WorkerProfile

	// applications by job, in arrival order.
	applications map[string][]*model.JobApplication
	applied      map[string]map[string]bool // worker key -> job ids applied

	offers  map[string]*model.Offer
	hired   map[string]bool // worker keys with an accepted offer
	matched []model.MatchedJob

	lossThreshold   float64
	maxApplications int
}

// NewMarket creates an empty labor market with default tuning.
func NewMarket() *Market {
	return &Market{
		jobs:            make(map[string]*model.Job),
		workers:         make(map[string]*model.WorkerProfile),
		applications:    make(map[string][]*model.JobApplication),
		applied:         make(map[string]map[string]bool),
		offers:          make(map[string]*model.Offer),
		hired:           make(map[string]bool),
		lossThreshold:   DefaultLossThreshold,
		maxApplications: DefaultMaxApplications,
	}
}

// SetLossThreshold overrides the application cutoff.
func (m *Market) SetLossThreshold(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lossThreshold = v
}

// PostJob registers a firm's posting. A posting needs a positive wage and at
// least one position to be valid.
func (m *Market) PostJob(job model.Job) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.FirmID == "" {
		return model.Job{}, fmt.Errorf("%w: missing firm", ErrInvalidJob)
	}
	if !job.WagePerHour.IsPositive() {
		return model.Job{}, fmt.Errorf("%w: wage must be positive", ErrInvalidJob)
	}
	if job.PositionsAvailable <= 0 {
		return model.Job{}, fmt.Errorf("%w: no positions", ErrInvalidJob)
	}
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	job.IsValid = true
	cp := job
	m.jobs[job.JobID] = &cp
	return job, nil
}

// Job returns a copy of one posting.
func (m *Market) Job(jobID string) (model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return *j, nil
}

// OpenJobs returns copies of postings that still have positions.
func (m *Market) OpenJobs() []model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.IsValid && j.PositionsAvailable > 0 {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
	return out
}

// MatchingLoss scores how far a worker's traits sit from a posting's
// requirements. Each trait with positive importance and spread contributes
// importance times the squared z-score of the gap; exceeding the requirement
// is damped. Traits the worker does not report count as zero, and traits
// with no importance or no spread do not discriminate, so they are skipped.
func MatchingLoss(job model.Job, w model.WorkerProfile) float64 {
	loss := 0.0
	add := func(req map[string]model.TraitRequirement, have map[string]float64) {
		for name, r := range req {
			if r.Importance <= 0 || r.Std <= 0 {
				continue
			}
			val := have[name]
			z := (val - r.Mean) / r.Std
			term := r.Importance * z * z
			if val > r.Mean {
				term *= dampingFactor
			}
			loss += term
		}
	}
	add(job.RequiredSkills, w.Skills)
	add(job.RequiredAbilities, w.Abilities)
	return loss
}

// Apply registers the worker and submits applications to the worker's best
// postings: losses below the threshold, ascending, capped at the application
// limit. Returns the submitted applications.
func (m *Market) Apply(month int, w model.WorkerProfile) ([]model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.WorkerKey()
	cp := w
	m.workers[key] = &cp
	if m.hired[key] {
		return nil, nil
	}
	if m.applied[key] == nil {
		m.applied[key] = make(map[string]bool)
	}

	type scored struct {
		jobID string
		loss  float64
	}
	var candidates []scored
	for id, j := range m.jobs {
		if !j.IsValid || j.PositionsAvailable <= 0 || m.applied[key][id] {
			continue
		}
		loss := MatchingLoss(*j, w)
		if loss >= m.lossThreshold {
			continue
		}
		candidates = append(candidates, scored{jobID: id, loss: loss})
	}
	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].loss != candidates[k].loss {
			return candidates[i].loss < candidates[k].loss
		}
		return candidates[i].jobID < candidates[k].jobID
	})
	if len(candidates) > m.maxApplications {
		candidates = candidates[:m.maxApplications]
	}

	out := make([]model.JobApplication, 0, len(candidates))
	for _, cand := range candidates {
		out = append(out, *m.submitApplication(month, key, cand.jobID, w, cand.loss))
	}
	return out, nil
}

// ApplyTo submits applications to an explicit list of postings, for callers
// that delegate the choice to an outside decision service. The loss
// threshold and application cap do not apply; unknown postings fail, closed
// or already-applied ones are skipped.
func (m *Market) ApplyTo(month int, w model.WorkerProfile, jobIDs []string) ([]model.JobApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := w.WorkerKey()
	cp := w
	m.workers[key] = &cp
	if m.hired[key] {
		return nil, nil
	}
	if m.applied[key] == nil {
		m.applied[key] = make(map[string]bool)
	}

	var out []model.JobApplication
	for _, id := range jobIDs {
		j, ok := m.jobs[id]
		if !ok {
			return out, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		if !j.IsValid || j.PositionsAvailable <= 0 || m.applied[key][id] {
			continue
		}
		out = append(out, *m.submitApplication(month, key, id, w, MatchingLoss(*j, w)))
	}
	return out, nil
}

// submitApplication records one application. Callers hold the lock.
func (m *Market) submitApplication(month int, key, jobID string, w model.WorkerProfile, loss float64) *model.JobApplication {
	app := &model.JobApplication{
		JobID:        jobID,
		HouseholdID:  w.HouseholdID,
		LHType:       w.LHType,
		ExpectedWage: w.ExpectedWage,
		Skills:       w.Skills,
		Abilities:    w.Abilities,
		Month:        month,
		Loss:         loss,
	}
	m.applications[jobID] = append(m.applications[jobID], app)
	m.applied[key][jobID] = true
	metrics.JobApplicationsTotal.Inc()
	return app
}

// Applications returns copies of one posting's applications.
func (m *Market) Applications(jobID string) []model.JobApplication {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.JobApplication, 0, len(m.applications[jobID]))
	for _, a := range m.applications[jobID] {
		out = append(out, *a)
	}
	return out
}

// offerScore ranks one applicant for one posting. Matching loss plus a
// penalty for wage expectations the posting does not meet.
func offerScore(app *model.JobApplication, wage decimal.Decimal) float64 {
	gap := app.ExpectedWage.Sub(wage)
	if gap.IsPositive() {
		return app.Loss + wagePenaltyFactor*gap.InexactFloat64()
	}
	return app.Loss
}
