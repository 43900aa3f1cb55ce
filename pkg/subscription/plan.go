package subscription

import (
	"fmt"
	"strings"
	"time"
)

// Limits is the capability set granted by a plan.
type Limits struct {
	MaxCards           int64 `bson:"maxCards" json:"maxCards" yaml:"maxCards"`
	MaxTransactions    int64 `bson:"maxTransactions" json:"maxTransactions" yaml:"maxTransactions"`
	Analytics          bool  `bson:"analytics" json:"analytics" yaml:"analytics"`
	Export             bool  `bson:"export" json:"export" yaml:"export"`
	PrioritySupport    bool  `bson:"prioritySupport" json:"prioritySupport" yaml:"prioritySupport"`
	APIAccess          bool  `bson:"apiAccess" json:"apiAccess" yaml:"apiAccess"`
	TeamManagement     bool  `bson:"teamManagement" json:"teamManagement" yaml:"teamManagement"`
	CustomIntegrations bool  `bson:"customIntegrations" json:"customIntegrations" yaml:"customIntegrations"`
}

// DefaultLimits applies to users without a resolvable subscription.
var DefaultLimits = Limits{MaxCards: 2, MaxTransactions: 10}

// Has reports whether the feature flag is enabled. Unknown features are off.
func (l Limits) Has(f Feature) bool {
	switch f {
	case FeatureAnalytics:
		return l.Analytics
	case FeatureExport:
		return l.Export
	case FeaturePrioritySupport:
		return l.PrioritySupport
	case FeatureAPIAccess:
		return l.APIAccess
	case FeatureTeamManagement:
		return l.TeamManagement
	case FeatureCustomIntegrations:
		return l.CustomIntegrations
	default:
		return false
	}
}

// Ceiling returns the numeric limit governing action.
func (l Limits) Ceiling(a Action) (int64, error) {
	switch a {
	case ActionAddCard:
		return l.MaxCards, nil
	case ActionAddTransaction:
		return l.MaxTransactions, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
}

// Allows reports whether one more item fits under limit given the current count.
// Unlimited is checked before any comparison.
func Allows(limit, count int64) bool {
	if limit == Unlimited {
		return true
	}
	return count < limit
}

// Plan is one purchasable tier definition.
type Plan struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	Name        string    `bson:"name" json:"name"`
	DisplayName string    `bson:"displayName" json:"displayName"`
	Tier        Tier      `bson:"tier" json:"tier"`
	Price       int64     `bson:"price" json:"price"` // minor currency units
	Currency    string    `bson:"currency" json:"currency"`
	Interval    Interval  `bson:"interval" json:"interval"`
	Active      bool      `bson:"active" json:"active"`
	Limits      Limits    `bson:"limits" json:"limits"`
	Features    []string  `bson:"features" json:"features"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the plan's static invariants.
func (p Plan) Validate() error {
	var problems []string
	if strings.TrimSpace(p.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !p.Tier.Valid() {
		problems = append(problems, fmt.Sprintf("unknown tier %q", p.Tier))
	}
	if p.Price < 0 {
		problems = append(problems, "price must not be negative")
	}
	if len(p.Currency) != 3 {
		problems = append(problems, "currency must be an ISO 4217 code")
	}
	if !p.Interval.Valid() {
		problems = append(problems, fmt.Sprintf("unknown interval %q", p.Interval))
	}
	if p.Limits.MaxCards < Unlimited || p.Limits.MaxTransactions < Unlimited {
		problems = append(problems, "limits must be -1 (unlimited) or non-negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPlanConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// MonthlyAmount is the plan's price normalized to one month, in minor units.
func (p Plan) MonthlyAmount() float64 {
	if p.Interval == IntervalYear {
		return float64(p.Price) / 12
	}
	return float64(p.Price)
}

// ClassifyChange returns upgrade when moving to a higher tier and downgrade
// when moving to a lower one. Within the same tier a higher price is an
// upgrade, anything else a downgrade. A nil from plan ranks as free at price 0.
func ClassifyChange(from *Plan, to Plan) ChangeType {
	fromTier, fromPrice := TierFree, int64(0)
	if from != nil {
		fromTier, fromPrice = from.Tier, from.Price
	}

	switch {
	case to.Tier.Rank() > fromTier.Rank():
		return ChangeUpgrade
	case to.Tier.Rank() < fromTier.Rank():
		return ChangeDowngrade
	case to.Price > fromPrice:
		return ChangeUpgrade
	default:
		return ChangeDowngrade
	}
}
