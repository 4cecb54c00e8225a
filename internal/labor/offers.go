package labor

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

// rankedApplicants returns one posting's applicants ordered by offer score.
// Callers hold the lock.
func (m *Market) rankedApplicants(jobID string) []*model.JobApplication {
	job := m.jobs[jobID]
	apps := make([]*model.JobApplication, len(m.applications[jobID]))
	copy(apps, m.applications[jobID])
	sort.SliceStable(apps, func(i, k int) bool {
		return offerScore(apps[i], job.WagePerHour) < offerScore(apps[k], job.WagePerHour)
	})
	return apps
}

// MakeOffers extends pending offers for every open posting to its
// best-scored applicants, one offer per open position. Lower-ranked
// applicants stay in reserve and are promoted during resolution when an
// offer ahead of them is rejected. Returns the offers issued.
func (m *Market) MakeOffers() []model.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	var issued []model.Offer
	for jobID, job := range m.jobs {
		if !job.IsValid || job.PositionsAvailable <= 0 {
			continue
		}
		apps := m.rankedApplicants(jobID)
		slots := job.PositionsAvailable
		for rank, app := range apps {
			if slots == 0 {
				break
			}
			key := app.HouseholdID + "/" + app.LHType
			if m.hired[key] || m.hasOffer(jobID, key) {
				continue
			}
			o := m.issueOffer(jobID, app, rank)
			issued = append(issued, *o)
			slots--
		}
	}
	return issued
}

// hasOffer reports whether the worker already holds a non-rejected offer for
// the job. Callers hold the lock.
func (m *Market) hasOffer(jobID, workerKey string) bool {
	for _, o := range m.offers {
		if o.JobID == jobID && o.WorkerKey() == workerKey && o.Status != model.OfferRejected {
			return true
		}
	}
	return false
}

func (m *Market) issueOffer(jobID string, app *model.JobApplication, rank int) *model.Offer {
	o := &model.Offer{
		OfferID:     uuid.New().String(),
		JobID:       jobID,
		HouseholdID: app.HouseholdID,
		LHType:      app.LHType,
		Rank:        rank,
		Score:       offerScore(app, m.jobs[jobID].WagePerHour),
		Status:      model.OfferPending,
	}
	m.offers[o.OfferID] = o
	return o
}

// Resolution summarizes one offer resolution run.
type Resolution struct {
	Hired    []model.MatchedJob `json:"hired"`
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
	Rounds   int                `json:"rounds"`
}

// ResolveOffers settles all pending offers to a fixed point. Each round,
// every worker holding pending offers accepts exactly one by policy and
// rejects the rest; each rejection frees a position, which is refilled from
// the posting's reserve list before the next round. Terminates when a round
// changes nothing, or at the round bound.
func (m *Market) ResolveOffers(month int, policy string, avgHours, periods int64) Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Resolution{Hired: []model.MatchedJob{}}
	for res.Rounds < maxResolutionRounds {
		res.Rounds++
		changed := false

		// Group pending offers by worker.
		byWorker := make(map[string][]*model.Offer)
		for _, o := range m.offers {
			if o.Status == model.OfferPending {
				byWorker[o.WorkerKey()] = append(byWorker[o.WorkerKey()], o)
			}
		}
		if len(byWorker) == 0 {
			break
		}

		for key, offers := range byWorker {
			if m.hired[key] {
				for _, o := range offers {
					o.Status = model.OfferRejected
					metrics.OffersTotal.WithLabelValues(model.OfferRejected).Inc()
					res.Rejected++
				}
				changed = true
				continue
			}
			best := m.pickOffer(offers, policy)
			for _, o := range offers {
				if o == best {
					continue
				}
				o.Status = model.OfferRejected
				metrics.OffersTotal.WithLabelValues(model.OfferRejected).Inc()
				res.Rejected++
			}
			hire := m.acceptOffer(month, best, avgHours, periods)
			res.Hired = append(res.Hired, hire)
			res.Accepted++
			changed = true
		}

		m.refillPositions()
		if !changed {
			break
		}
	}
	metrics.MatchingRounds.Observe(float64(res.Rounds))
	m.matched = append(m.matched, res.Hired...)
	return res
}

// pickOffer chooses which pending offer a worker accepts. Best-loss takes
// the lowest score, ties broken by higher wage; highest-wage takes the best
// pay, ties broken by lower score. Job ID orders any remaining ties so the
// outcome never depends on map iteration. Callers hold the lock.
func (m *Market) pickOffer(offers []*model.Offer, policy string) *model.Offer {
	best := offers[0]
	for _, o := range offers[1:] {
		if m.offerBeats(o, best, policy) {
			best = o
		}
	}
	return best
}

func (m *Market) offerBeats(a, b *model.Offer, policy string) bool {
	wageA, wageB := m.jobs[a.JobID].WagePerHour, m.jobs[b.JobID].WagePerHour
	switch policy {
	case PolicyHighestWage:
		if !wageA.Equal(wageB) {
			return wageA.GreaterThan(wageB)
		}
		if a.Score != b.Score {
			return a.Score < b.Score
		}
	default: // PolicyBestLoss
		if a.Score != b.Score {
			return a.Score < b.Score
		}
		if !wageA.Equal(wageB) {
			return wageA.GreaterThan(wageB)
		}
	}
	return a.JobID < b.JobID
}

// acceptOffer finalizes a hire: the offer accepts, the posting loses a
// position and closes at zero, and the worker leaves the candidate pool.
// Callers hold the lock.
func (m *Market) acceptOffer(month int, o *model.Offer, avgHours, periods int64) model.MatchedJob {
	o.Status = model.OfferAccepted
	metrics.OffersTotal.WithLabelValues(model.OfferAccepted).Inc()

	job := m.jobs[o.JobID]
	job.PositionsAvailable--
	if job.PositionsAvailable == 0 {
		job.IsValid = false
	}
	m.hired[o.WorkerKey()] = true

	monthly := job.WagePerHour.
		Mul(decimal.NewFromInt(avgHours)).
		Mul(decimal.NewFromInt(periods))
	return model.MatchedJob{
		Job:             *job,
		HouseholdID:     o.HouseholdID,
		LHType:          o.LHType,
		FirmID:          job.FirmID,
		AverageWage:     monthly,
		SkillMatchScore: o.Score,
		Month:           month,
	}
}

// refillPositions promotes reserve applicants into pending offers for any
// posting with open positions and no pending offer covering them. Callers
// hold the lock.
func (m *Market) refillPositions() {
	for jobID, job := range m.jobs {
		if !job.IsValid || job.PositionsAvailable <= 0 {
			continue
		}
		pending := 0
		for _, o := range m.offers {
			if o.JobID == jobID && o.Status == model.OfferPending {
				pending++
			}
		}
		need := job.PositionsAvailable - pending
		if need <= 0 {
			continue
		}
		for rank, app := range m.rankedApplicants(jobID) {
			if need == 0 {
				break
			}
			key := app.HouseholdID + "/" + app.LHType
			if m.hired[key] || m.hasOffer(jobID, key) {
				continue
			}
			m.issueOffer(jobID, app, rank)
			need--
		}
	}
}

// PendingOffers returns copies of the pending offers grouped by worker key.
func (m *Market) PendingOffers() map[string][]model.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]model.Offer)
	for _, o := range m.offers {
		if o.Status == model.OfferPending {
			out[o.WorkerKey()] = append(out[o.WorkerKey()], *o)
		}
	}
	return out
}

// DecideOffers settles pending offers from externally supplied choices, one
// job ID per worker key; an empty choice declines everything. Freed
// positions are refilled from the reserve lists, so a later policy resolve
// can settle what the decisions left open.
func (m *Market) DecideOffers(month int, choices map[string]string, avgHours, periods int64) Resolution {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := Resolution{Hired: []model.MatchedJob{}, Rounds: 1}
	keys := make([]string, 0, len(choices))
	for k := range choices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		var accept *model.Offer
		var rest []*model.Offer
		for _, o := range m.offers {
			if o.Status != model.OfferPending || o.WorkerKey() != key {
				continue
			}
			if accept == nil && !m.hired[key] && o.JobID == choices[key] {
				accept = o
			} else {
				rest = append(rest, o)
			}
		}
		for _, o := range rest {
			o.Status = model.OfferRejected
			metrics.OffersTotal.WithLabelValues(model.OfferRejected).Inc()
			res.Rejected++
		}
		if accept != nil {
			res.Hired = append(res.Hired, m.acceptOffer(month, accept, avgHours, periods))
			res.Accepted++
		}
	}

	m.refillPositions()
	metrics.MatchingRounds.Observe(float64(res.Rounds))
	m.matched = append(m.matched, res.Hired...)
	return res
}

// MatchedJobs returns copies of the month's hires.
func (m *Market) MatchedJobs(month int) []model.MatchedJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.MatchedJob
	for _, mj := range m.matched {
		if mj.Month == month {
			out = append(out, mj)
		}
	}
	return out
}

// EmployedHouseholds reports which registered households hold at least one
// job, for transfer targeting.
func (m *Market) EmployedHouseholds() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool)
	for key, hired := range m.hired {
		if !hired {
			continue
		}
		for i := 0; i < len(key); i++ {
			if key[i] == '/' {
				out[key[:i]] = true
				break
			}
		}
	}
	return out
}

// RegisteredHouseholds lists every household with at least one worker slot
// in the pool.
func (m *Market) RegisteredHouseholds() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool)
	for _, w := range m.workers {
		out[w.HouseholdID] = true
	}
	return out
}
