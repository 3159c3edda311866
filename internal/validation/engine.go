package validation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"leadgen_backend/internal/leads/domain"
	"leadgen_backend/platform/apperr"
	"leadgen_backend/platform/logger"
)

// Result reports how validation settled. Reason carries the failure code
// of the first rule that failed, empty when valid.
type Result struct {
	Valid          bool
	Reason         string
	RulesEvaluated int
}

// Engine validates admitted leads against their offer's policy.
type Engine struct {
	repo Repository
	log  *logger.Logger
}

// NewEngine creates a new validation engine.
func NewEngine(repo Repository, log *logger.Logger) *Engine {
	return &Engine{repo: repo, log: log}
}

// Validate evaluates the lead and applies the guarded transition the
// verdict calls for. Replaying on a lead that already left 'received' is
// a no-op reporting the settled validity.
func (e *Engine) Validate(ctx context.Context, lead domain.Lead) (Result, error) {
	if lead.Status != domain.StatusReceived {
		return settledResult(lead.Status), nil
	}

	policy, err := e.repo.ActivePolicy(ctx, lead.OfferID)
	if err != nil {
		return Result{}, err
	}
	if policy == nil {
		return Result{}, apperr.Internal(fmt.Sprintf("no active validation policy for offer %d", lead.OfferID)).
			WithCode(CodePolicyNotFound)
	}

	rules, err := parseRules(policy.Rules)
	if err != nil {
		return Result{}, err
	}

	evaluated, reason := e.evaluate(lead, rules)

	if reason != "" {
		outcome, status, err := e.repo.MarkRejected(ctx, lead.ID, reason)
		if err != nil {
			return Result{}, err
		}
		if outcome == domain.OutcomeConflict {
			// Someone advanced the lead mid-evaluation; report what stuck.
			return settledResult(status), nil
		}
		return Result{Valid: false, Reason: reason, RulesEvaluated: evaluated}, nil
	}

	outcome, status, err := e.repo.MarkValidated(ctx, lead.ID)
	if err != nil {
		return Result{}, err
	}
	if outcome == domain.OutcomeConflict {
		return settledResult(status), nil
	}
	return Result{Valid: true, RulesEvaluated: evaluated}, nil
}

// evaluate runs required -> format -> allowed in document order and
// short-circuits on the first failure.
func (e *Engine) evaluate(lead domain.Lead, rules ruleSet) (int, string) {
	evaluated := 0

	for _, field := range rules.Required {
		evaluated++
		if strings.TrimSpace(fieldValue(lead, field)) == "" {
			return evaluated, "missing_required_field:" + field
		}
	}

	for _, rule := range rules.Formats {
		evaluated++
		value := fieldValue(lead, rule.Field)
		if value == "" || rule.Pattern == "" {
			continue
		}
		regex, err := regexp.Compile(rule.Pattern)
		if err != nil {
			// A broken stored pattern must not reject real leads.
			e.log.Warn("skipping invalid validation pattern", "field", rule.Field, "pattern", rule.Pattern)
			continue
		}
		if !regex.MatchString(value) {
			return evaluated, "invalid_format_" + rule.Field
		}
	}

	for _, rule := range rules.Allowed {
		evaluated++
		value := strings.TrimSpace(fieldValue(lead, rule.Field))
		if value == "" || len(rule.Values) == 0 {
			continue
		}
		if !containsString(rule.Values, value) {
			return evaluated, "value_not_allowed:" + rule.Field
		}
	}

	return evaluated, ""
}

func settledResult(status domain.Status) Result {
	switch status {
	case domain.StatusValidated, domain.StatusDelivered, domain.StatusAccepted:
		return Result{Valid: true}
	default:
		return Result{Valid: false}
	}
}

// fieldValue resolves a policy field name against the lead. Unknown
// fields read as empty, so a required rule on a misspelled field fails
// loudly in the reason code rather than silently passing.
func fieldValue(lead domain.Lead, field string) string {
	switch field {
	case "name":
		return domain.Deref(lead.Name)
	case "email":
		return domain.Deref(lead.Email)
	case "phone":
		return domain.Deref(lead.Phone)
	case "country_code":
		return domain.Deref(lead.CountryCode)
	case "postal_code":
		return domain.Deref(lead.PostalCode)
	case "city":
		return domain.Deref(lead.City)
	case "region_code":
		return domain.Deref(lead.RegionCode)
	case "message":
		return domain.Deref(lead.Message)
	case "utm_source":
		return domain.Deref(lead.UTMSource)
	case "utm_medium":
		return domain.Deref(lead.UTMMedium)
	case "utm_campaign":
		return domain.Deref(lead.UTMCampaign)
	default:
		return ""
	}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
