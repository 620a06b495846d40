package domain

// Plan is a subscription tier as returned by GET /plans/.
type Plan struct {
	Name   string     `json:"name"`
	Limits PlanLimits `json:"limits"`
}

// PlanLimits are the quotas of a plan.
type PlanLimits struct {
	MaxAgents         int `json:"max_agents"`
	MaxTokensPerMonth int `json:"max_tokens_per_month"`
}

// Plans is keyed by plan id ("free", "pro").
type Plans map[string]Plan

// UsageLevel buckets a usage ratio for display.
type UsageLevel string

const (
	UsageOK      UsageLevel = "ok"
	UsageWarning UsageLevel = "warning"
	UsageError   UsageLevel = "error"
)

// Usage is a used/limit pair such as tokens this month against the plan quota.
type Usage struct {
	Used  int
	Limit int
}

// Percent is Used as a percentage of Limit; a non-positive limit yields 0.
func (u Usage) Percent() float64 {
	if u.Limit <= 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Limit) * 100
}

// Level is warning above 70% and error above 90%.
func (u Usage) Level() UsageLevel {
	switch p := u.Percent(); {
	case p > 90:
		return UsageError
	case p > 70:
		return UsageWarning
	default:
		return UsageOK
	}
}

// TokenUsageFor returns the monthly token usage of user against their plan.
// ok is false when the user's plan is unknown.
func (p Plans) TokenUsageFor(user User) (Usage, bool) {
	plan, ok := p[user.Plan]
	if !ok {
		return Usage{}, false
	}
	return Usage{Used: user.TokenUsageThisMonth, Limit: plan.Limits.MaxTokensPerMonth}, true
}

// CheckAgentLimit fails when user already owns as many agents as their plan
// allows. An unknown plan or a non-positive limit never blocks.
func (p Plans) CheckAgentLimit(user User, owned int) error {
	plan, ok := p[user.Plan]
	if !ok || plan.Limits.MaxAgents <= 0 {
		return nil
	}
	if owned >= plan.Limits.MaxAgents {
		return &ValidationError{Field: "agents", Message: "agent limit reached for your plan"}
	}
	return nil
}
