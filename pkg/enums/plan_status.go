package enums

// PlanStatus tracks the lifecycle state of a billing plan.
type PlanStatus string

const (
	PlanStatusActive     PlanStatus = "active"
	PlanStatusDeprecated PlanStatus = "deprecated"
	PlanStatusHidden     PlanStatus = "hidden"
)

// IsPurchasable reports whether new subscriptions may be opened on the plan.
func (p PlanStatus) IsPurchasable() bool {
	return p == PlanStatusActive || p == PlanStatusHidden
}
