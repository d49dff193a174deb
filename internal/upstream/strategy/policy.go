package strategy

import "strings"

// Policy decides which credential slot an endpoint is sent with.
type Policy int

const (
	// PolicyFallback prefers the user credential and falls back to the visitor one.
	PolicyFallback Policy = iota
	// PolicyVisitorOnly always uses the visitor credential.
	PolicyVisitorOnly
	// PolicyUserOnly always uses the user credential.
	PolicyUserOnly
)

func (p Policy) String() string {
	switch p {
	case PolicyVisitorOnly:
		return "visitor-only"
	case PolicyUserOnly:
		return "user-only"
	default:
		return "fallback"
	}
}

// Rule binds an endpoint substring to a policy.
type Rule struct {
	Pattern string
	Policy  Policy
}

// DefaultRules is the endpoint policy table, in priority order. Some patterns
// are substrings of others (CreateSurvey / CreateSurveyFromQuery), so the
// visitor rules must stay first.
var DefaultRules = []Rule{
	{"CreateSurveyFromQuery", PolicyVisitorOnly},
	{"CreateSurveyFromBrand", PolicyVisitorOnly},
	{"StartSurvey", PolicyVisitorOnly},
	{"GenerateQuestionsFromQuery", PolicyVisitorOnly},
	{"GenerateQuestionsFromBrand", PolicyVisitorOnly},

	{"ChangeSurveySchedule", PolicyUserOnly},
	{"CreateSurvey", PolicyUserOnly},
	{"UpdateUser", PolicyUserOnly},
	{"DeleteMember", PolicyUserOnly},
	{"AddMember", PolicyUserOnly},
	{"UpdateMember", PolicyUserOnly},
	{"GetMembers", PolicyUserOnly},
	{"GetPendingInvitations", PolicyUserOnly},
	{"DeleteInvitation", PolicyUserOnly},
	{"AddQuestion", PolicyUserOnly},
	{"EditQuestion", PolicyUserOnly},
	{"DeleteQuestion", PolicyUserOnly},
}

// Table classifies endpoints by ordered substring match.
type Table struct {
	rules []Rule
}

// NewTable copies rules; a nil slice yields DefaultRules.
func NewTable(rules []Rule) *Table {
	if rules == nil {
		rules = DefaultRules
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Table{rules: cp}
}

// Classify returns the policy of the first matching rule, and the pattern
// that matched ("" for fallback). Matching is case-sensitive.
func (t *Table) Classify(endpoint string) (Policy, string) {
	for _, r := range t.rules {
		if strings.Contains(endpoint, r.Pattern) {
			return r.Policy, r.Pattern
		}
	}
	return PolicyFallback, ""
}

// Rules returns a copy of the table.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
