package economy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/agentsim/economy-engine/internal/labor"
	"github.com/agentsim/economy-engine/internal/ledger"
	"github.com/agentsim/economy-engine/internal/model"
)

// PostJob handles POST /api/v1/jobs
func (s *Service) PostJob(w http.ResponseWriter, r *http.Request) {
	var req model.Job
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, err := s.jobs.PostJob(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	slog.Info("job posted",
		"job", job.JobID,
		"firm", job.FirmID,
		"wage", job.WagePerHour.String(),
		"positions", job.PositionsAvailable,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

// ListOpenJobs handles GET /api/v1/jobs
func (s *Service) ListOpenJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.jobs.OpenJobs())
}

// ApplyRequest is the JSON body for POST /jobs/apply. With Consult set the
// decision service picks the postings instead of the loss ranking.
type ApplyRequest struct {
	Month   int                 `json:"month"`
	Worker  model.WorkerProfile `json:"worker"`
	Consult bool                `json:"consult,omitempty"`
}

// ApplyForJobs handles POST /api/v1/jobs/apply
// Submits the worker's applications to their best-fitting open postings, or
// to the postings the decision service chooses when the caller asks for it.
func (s *Service) ApplyForJobs(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Worker.HouseholdID == "" || req.Worker.LHType == "" {
		writeError(w, "household_id and lh_type are required", http.StatusBadRequest)
		return
	}

	var apps []model.JobApplication
	var err error
	if req.Consult {
		if s.oracle == nil {
			writeError(w, "no decision oracle configured", http.StatusServiceUnavailable)
			return
		}
		choices, oerr := s.oracle.JobChoices(r.Context(), req.Month, req.Worker, s.jobs.OpenJobs())
		if oerr != nil {
			writeError(w, oerr.Error(), http.StatusBadGateway)
			return
		}
		apps, err = s.jobs.ApplyTo(req.Month, req.Worker, choices)
	} else {
		apps, err = s.jobs.Apply(req.Month, req.Worker)
	}
	if err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	if apps == nil {
		apps = []model.JobApplication{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(apps)
}

// MakeOffers handles POST /api/v1/jobs/offers
func (s *Service) MakeOffers(w http.ResponseWriter, r *http.Request) {
	offers := s.jobs.MakeOffers()
	if offers == nil {
		offers = []model.Offer{}
	}
	slog.Info("offers extended", "count", len(offers))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(offers)
}

// ResolveRequest is the JSON body for POST /jobs/resolve.
type ResolveRequest struct {
	Month  int    `json:"month"`
	Policy string `json:"policy"`
}

// ResolveOffers handles POST /api/v1/jobs/resolve
// Settles all pending offers and returns the hires made with accept, reject
// and round counts.
func (s *Service) ResolveOffers(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	policy := req.Policy
	if policy == "" {
		policy = s.params.OfferPolicy
	}
	if policy != labor.PolicyBestLoss && policy != labor.PolicyHighestWage {
		writeError(w, "policy must be best_loss or highest_wage", http.StatusBadRequest)
		return
	}

	res := s.jobs.ResolveOffers(req.Month, policy, s.params.AvgWeeklyHours, s.params.PeriodsPerMonth)
	slog.Info("offers resolved",
		"month", req.Month,
		"policy", policy,
		"accepted", res.Accepted,
		"rejected", res.Rejected,
		"rounds", res.Rounds,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// DecideOffersRequest is the JSON body for POST /jobs/offers/decide.
type DecideOffersRequest struct {
	Month int `json:"month"`
}

// DecideOffers handles POST /api/v1/jobs/offers/decide
// Asks the decision service which pending offer each worker takes, then
// settles those choices. The oracle is consulted outside the labor market's
// serialized operations; only the finished decisions are fed back in.
func (s *Service) DecideOffers(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, "no decision oracle configured", http.StatusServiceUnavailable)
		return
	}
	var req DecideOffersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	pending := s.jobs.PendingOffers()
	keys := make([]string, 0, len(pending))
	for k := range pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	choices := make(map[string]string, len(keys))
	for _, key := range keys {
		jobID, err := s.oracle.AcceptOffer(r.Context(), req.Month, key, pending[key])
		if err != nil {
			writeError(w, err.Error(), http.StatusBadGateway)
			return
		}
		choices[key] = jobID
	}

	res := s.jobs.DecideOffers(req.Month, choices, s.params.AvgWeeklyHours, s.params.PeriodsPerMonth)
	slog.Info("offers decided",
		"month", req.Month,
		"workers", len(choices),
		"accepted", res.Accepted,
		"rejected", res.Rejected,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// ListMatches handles GET /api/v1/jobs/matches?month=
func (s *Service) ListMatches(w http.ResponseWriter, r *http.Request) {
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, "month query parameter is required", http.StatusBadRequest)
		return
	}
	matches := s.jobs.MatchedJobs(month)
	if matches == nil {
		matches = []model.MatchedJob{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(matches)
}

// WageRequest is the JSON body for POST /wages.
type WageRequest struct {
	Month       int             `json:"month"`
	FirmID      string          `json:"firm_id"`
	HouseholdID string          `json:"household_id"`
	LHType      string          `json:"lh_type"`
	WagePerHour decimal.Decimal `json:"wage_per_hour"`
	Hours       int64           `json:"hours"`   // weekly hours; 0 → configured default
	Periods     int64           `json:"periods"` // periods per month; 0 → configured default
}

// WageResponse is the JSON body returned from POST /wages.
type WageResponse struct {
	Transaction    *model.Transaction `json:"transaction"`
	TaxTransaction *model.Transaction `json:"tax_transaction,omitempty"`
	Gross          decimal.Decimal    `json:"gross"`
	Net            decimal.Decimal    `json:"net"`
	Tax            decimal.Decimal    `json:"tax"`
}

// PayWage handles POST /api/v1/wages
// The firm pays the gross wage; income tax is withheld at the source and
// forwarded to the government, the household receives the net.
func (s *Service) PayWage(w http.ResponseWriter, r *http.Request) {
	var req WageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.FirmID == "" || req.HouseholdID == "" {
		writeError(w, "firm_id and household_id are required", http.StatusBadRequest)
		return
	}
	if !req.WagePerHour.IsPositive() {
		writeError(w, "wage_per_hour must be positive", http.StatusBadRequest)
		return
	}
	hours := req.Hours
	if hours == 0 {
		hours = s.params.AvgWeeklyHours
	}
	periods := req.Periods
	if periods == 0 {
		periods = s.params.PeriodsPerMonth
	}

	gross := req.WagePerHour.
		Mul(decimal.NewFromInt(hours)).
		Mul(decimal.NewFromInt(periods))
	net, withheld := s.taxEngine().NetWage(gross)

	result, err := s.ledger.ApplyWage(req.Month, req.FirmID, req.HouseholdID,
		s.params.GovernmentID, gross, net, withheld,
		map[string]string{"lh_type": req.LHType})
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			writeError(w, err.Error(), http.StatusPaymentRequired)
			return
		}
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("wage paid",
		"firm", req.FirmID,
		"household", req.HouseholdID,
		"gross", gross.String(),
		"net", net.String(),
		"tax", withheld.String(),
	)
	s.broadcastTx(result.Tx)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(WageResponse{
		Transaction:    result.Tx,
		TaxTransaction: result.TaxTx,
		Gross:          result.Gross,
		Net:            result.Net,
		Tax:            result.Tax,
	})
}
