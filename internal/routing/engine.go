package routing

import (
	"context"
	"fmt"
	"math"
	"time"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

// Engine routes validated leads to buyers per the offer's policy.
type Engine struct {
	repo Repository
	log  *logger.Logger
}

// NewEngine creates a new routing engine.
func NewEngine(repo Repository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// Route selects a buyer for the lead and applies the guarded assignment.
// A pass without a winner returns a reason, not an error; the lead stays
// 'validated' and a later pass can retry. Calling on a lead that already
// carries a buyer reports that assignment unchanged.
func (e *Engine) Route(ctx context.Context, lead domain.Lead) (Result, error) {
	switch lead.Status {
	case domain.StatusValidated:
	case domain.StatusDelivered, domain.StatusAccepted:
		return Result{BuyerID: lead.BuyerID}, nil
	default:
		return Result{NoRouteReason: ReasonLeadNotValidated}, nil
	}
	if lead.BuyerID != nil {
		return Result{BuyerID: lead.BuyerID}, nil
	}

	policy, err := e.repo.ActivePolicy(ctx, lead.OfferID)
	if err != nil {
		return Result{}, err
	}
	if policy == nil {
		return Result{}, apperr.Internal(fmt.Sprintf("no active routing policy for offer %d", lead.OfferID)).
			WithCode(CodePolicyNotFound)
	}

	eligible, err := e.repo.EligibleBuyers(ctx, EligibilityQuery{
		OfferID:    lead.OfferID,
		MarketID:   lead.MarketID,
		PostalCode: lead.PostalCode,
		City:       lead.City,
	})
	if err != nil {
		return Result{}, err
	}
	candidates := withinCapacity(eligible)
	e.log.Debug("routing candidate pool",
		"lead_id", lead.ID, "eligible", len(eligible), "within_capacity", len(candidates))

	exclusive, err := e.exclusiveBuyer(ctx, lead)
	if err != nil {
		return Result{}, err
	}
	if exclusive != nil {
		if pick, ok := findCandidate(candidates, *exclusive); ok {
			return e.assign(ctx, lead, pick, StrategyExclusive)
		}
		if policy.ExclusivityFallback != FallbackFailOpen {
			return Result{NoRouteReason: ReasonExclusiveBuyerIneligible}, nil
		}
		// fail_open falls through to strategy selection over everyone.
	}

	if len(candidates) == 0 {
		return Result{NoRouteReason: ReasonNoEligibleBuyers}, nil
	}

	pick, err := e.rank(ctx, lead.OfferID, policy.Strategy, candidates)
	if err != nil {
		return Result{}, err
	}
	return e.assign(ctx, lead, pick, policy.Strategy)
}

// exclusiveBuyer resolves the exclusivity claim on the lead's location.
// A postal code claim outranks a city claim.
func (e *Engine) exclusiveBuyer(ctx context.Context, lead domain.Lead) (*int64, error) {
	if postal := domain.Deref(lead.PostalCode); postal != "" {
		buyerID, err := e.repo.ExclusiveBuyer(ctx, lead.OfferID, ScopePostalCode, postal)
		if err != nil || buyerID != nil {
			return buyerID, err
		}
	}
	if city := domain.Deref(lead.City); city != "" {
		return e.repo.ExclusiveBuyer(ctx, lead.OfferID, ScopeCity, city)
	}
	return nil, nil
}

func (e *Engine) rank(ctx context.Context, offerID int64, strategy string, candidates []Candidate) (Candidate, error) {
	switch strategy {
	case StrategyRoundRobin:
		last, err := e.repo.LastAssignments(ctx, offerID, buyerIDs(candidates))
		if err != nil {
			return Candidate{}, err
		}
		return pickRoundRobin(candidates, last), nil
	case StrategyCapacityWeighted:
		return pickCapacityWeighted(candidates), nil
	default:
		return pickPriority(candidates), nil
	}
}

func (e *Engine) assign(ctx context.Context, lead domain.Lead, pick Candidate, strategy string) (Result, error) {
	outcome, current, err := e.repo.AssignBuyer(ctx, lead.ID, pick.BuyerID)
	if err != nil {
		return Result{}, err
	}
	switch outcome {
	case domain.OutcomeApplied:
		buyerID := pick.BuyerID
		return Result{BuyerID: &buyerID, Strategy: strategy}, nil
	case domain.OutcomeAlreadyApplied:
		return Result{BuyerID: current}, nil
	default:
		return Result{}, apperr.Conflict("lead was routed concurrently").
			WithCode(ReasonConcurrentRoutingAttempt)
	}
}

// withinCapacity drops candidates whose trailing delivered counts have
// reached a configured cap. Nil caps never filter.
func withinCapacity(candidates []Candidate) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.CapacityPerDay != nil && c.DeliveredDay >= *c.CapacityPerDay {
			continue
		}
		if c.CapacityPerHour != nil && c.DeliveredHour >= *c.CapacityPerHour {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func findCandidate(candidates []Candidate, buyerID int64) (Candidate, bool) {
	for _, c := range candidates {
		if c.BuyerID == buyerID {
			return c, true
		}
	}
	return Candidate{}, false
}

func buyerIDs(candidates []Candidate) []int64 {
	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.BuyerID
	}
	return ids
}

// pickPriority selects the highest routing priority, lowest buyer id on
// ties.
func pickPriority(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.RoutingPriority > best.RoutingPriority ||
			(c.RoutingPriority == best.RoutingPriority && c.BuyerID < best.BuyerID) {
			best = c
		}
	}
	return best
}

// pickRoundRobin selects the buyer whose turn is furthest in the past:
// never-assigned buyers first, then oldest last assignment, lowest buyer
// id on ties.
func pickRoundRobin(candidates []Candidate, last map[int64]time.Time) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if roundRobinBefore(c, best, last) {
			best = c
		}
	}
	return best
}

func roundRobinBefore(a, b Candidate, last map[int64]time.Time) bool {
	aAt, aSeen := last[a.BuyerID]
	bAt, bSeen := last[b.BuyerID]
	if aSeen != bSeen {
		return !aSeen
	}
	if aSeen && !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return a.BuyerID < b.BuyerID
}

// pickCapacityWeighted selects the greatest remaining daily headroom,
// lowest buyer id on ties. Uncapped buyers always win over capped ones.
func pickCapacityWeighted(candidates []Candidate) Candidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		ch, bh := dailyHeadroom(c), dailyHeadroom(best)
		if ch > bh || (ch == bh && c.BuyerID < best.BuyerID) {
			best = c
		}
	}
	return best
}

func dailyHeadroom(c Candidate) int {
	if c.CapacityPerDay == nil {
		return math.MaxInt
	}
	return *c.CapacityPerDay - c.DeliveredDay
}
