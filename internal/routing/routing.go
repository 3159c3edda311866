// Package routing assigns validated leads to buyers. Selection walks an
// offer's routing policy: exclusivity claims first, then the eligible
// buyer pool filtered by service area, pause state, balance floor and
// capacity, ranked by the policy's strategy. Assignment is a guarded
// update so concurrent routers cannot double-assign a lead.
package routing

// Routing strategies a policy can configure.
const (
	StrategyPriority         = "priority"
	StrategyRoundRobin       = "round_robin"
	StrategyCapacityWeighted = "capacity_weighted"

	// StrategyExclusive is reported on results routed through an
	// exclusivity claim rather than strategy ranking.
	StrategyExclusive = "exclusive"
)

// Fallback behavior when the exclusive buyer fails eligibility.
const (
	FallbackFailClosed = "fail_closed"
	FallbackFailOpen   = "fail_open"
)

// Geographic scopes service areas and exclusivities are keyed by.
const (
	ScopePostalCode = "postal_code"
	ScopeCity       = "city"
)

// Reasons a routing pass can end without an assignment. The lead stays
// 'validated' and a later sweep retries it.
const (
	ReasonLeadNotValidated         = "lead_not_validated"
	ReasonNoEligibleBuyers         = "no_eligible_buyers"
	ReasonExclusiveBuyerIneligible = "exclusive_buyer_ineligible_fail_closed"
	ReasonConcurrentRoutingAttempt = "concurrent_routing_attempt"
)

// CodePolicyNotFound marks an offer without an active routing policy, a
// configuration fault rather than a lead fault.
const CodePolicyNotFound = "routing_policy_not_found"

// Policy is an offer's active routing configuration.
type Policy struct {
	ID                  int64
	Name                string
	Version             int
	Strategy            string
	ExclusivityFallback string
}

// Candidate is one eligible buyer with the counters strategy ranking
// and capacity filtering need. Nil caps mean unlimited.
type Candidate struct {
	BuyerID         int64
	RoutingPriority int
	PriceCents      *int64
	CapacityPerDay  *int
	CapacityPerHour *int
	DeliveredDay    int
	DeliveredHour   int
}

// Result reports how a routing pass settled. Exactly one of BuyerID and
// NoRouteReason is set.
type Result struct {
	BuyerID       *int64
	Strategy      string
	NoRouteReason string
}

// Routed reports whether the pass ended with a buyer on the lead.
func (r Result) Routed() bool {
	return r.BuyerID != nil
}
