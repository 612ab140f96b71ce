package subscription

import (
	"encoding/json"
	"fmt"
	"io/ioutil"

	extErrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Prices holds the price of a Plan for each billing Cycle
type Prices struct {
	Monthly decimal.Decimal `json:"monthly"`
	Yearly  decimal.Decimal `json:"yearly"`
}

// Plan describes an advertising dashboard plan available for purchase
type Plan struct {
	ID       string `json:"id"`       // Referenced by Subscription.PlanID
	Name     string `json:"name"`     // Represent the name shown to the customer
	Currency string `json:"currency"` // The ISO currency code (e.g. usd)
	Prices   Prices `json:"prices"`
}

// Price returns the price of this Plan for cycle
func (p *Plan) Price(cycle Cycle) (decimal.Decimal, bool) {
	switch cycle {
	case CycleMonthly:
		return p.Prices.Monthly, true
	case CycleYearly:
		return p.Prices.Yearly, true
	}
	return decimal.Zero, false
}

// DefaultPlans defines what plans are available when no plan file is configured
var DefaultPlans = []Plan{
	{
		ID:       "starter",
		Name:     "Starter",
		Currency: "usd",
		Prices: Prices{
			Monthly: decimal.RequireFromString("29"),
			Yearly:  decimal.RequireFromString("290"),
		},
	},
	{
		ID:       "pro",
		Name:     "Pro",
		Currency: "usd",
		Prices: Prices{
			Monthly: decimal.RequireFromString("99"),
			Yearly:  decimal.RequireFromString("990"),
		},
	},
	{
		ID:       "agency",
		Name:     "Agency",
		Currency: "usd",
		Prices: Prices{
			Monthly: decimal.RequireFromString("299"),
			Yearly:  decimal.RequireFromString("2990"),
		},
	},
}

// Catalog is the static plan-price table keyed by (plan id, cycle)
type Catalog struct {
	planArray      []Plan
	planIDIndexMap map[string]int
}

// NewCatalog indexes plans by ID. Duplicate IDs are rejected
func NewCatalog(plans []Plan) (*Catalog, error) {
	planMap := make(map[string]int)
	for index, p := range plans {
		if len(p.ID) == 0 {
			return nil, fmt.Errorf("plan at index %d has empty ID", index)
		}
		if _, ok := planMap[p.ID]; ok {
			return nil, fmt.Errorf("duplicate plan ID %s", p.ID)
		}
		if p.Prices.Monthly.IsNegative() || p.Prices.Yearly.IsNegative() {
			return nil, fmt.Errorf("plan %s has a negative price", p.ID)
		}
		planMap[p.ID] = index + 1
	}
	return &Catalog{
		planArray:      plans,
		planIDIndexMap: planMap,
	}, nil
}

// LoadCatalog reads plans from the JSON file at path, or uses DefaultPlans when path is empty
func LoadCatalog(path string) (*Catalog, error) {
	if len(path) == 0 {
		return NewCatalog(DefaultPlans)
	}
	plans, err := loadPlansFromFile(path)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot populate defined Plans")
	}
	return NewCatalog(plans)
}

func loadPlansFromFile(filename string) ([]Plan, error) {
	jsonBytes, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot open plans JSON file")
	}
	plans := make([]Plan, 0, 1)
	if err := json.Unmarshal(jsonBytes, &plans); err != nil {
		return nil, extErrors.Wrap(err, "Invalid plan JSON file")
	}
	return plans, nil
}

// Plans lists every defined Plan
func (c *Catalog) Plans() []Plan {
	return c.planArray
}

// Lookup returns the Plan with planID and its price for cycle.
// ok is false when either the plan or the cycle is unknown.
func (c *Catalog) Lookup(planID string, cycle Cycle) (plan Plan, price decimal.Decimal, ok bool) {
	index := c.planIDIndexMap[planID]
	if index == 0 {
		return Plan{}, decimal.Zero, false
	}
	plan = c.planArray[index-1]
	price, ok = plan.Price(cycle)
	return plan, price, ok
}
