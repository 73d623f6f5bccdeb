package domain

import (
	"strings"
	"time"
)

// Billing intervals.
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// Plan is a purchasable diagnostic subscription tier.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Interval    string   `json:"interval"`
	PriceKES    int64    `json:"priceKes"` // whole shillings, M-Pesa rejects fractions
	Features    []string `json:"features"`
	Popular     bool     `json:"popular"`
}

// Free reports whether the plan can be used without a payment.
func (p Plan) Free() bool {
	return p.PriceKES == 0
}

// Extend returns the expiry of a subscription to p activated at from.
func (p Plan) Extend(from time.Time) time.Time {
	if p.Interval == IntervalYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

var monthlyPlans = []Plan{
	{
		ID:          "free",
		Name:        "Free",
		Description: "Basic access for occasional use",
		Interval:    IntervalMonthly,
		PriceKES:    0,
		Features:    []string{"5 diagnoses per month", "Basic fault code lookup"},
	},
	{
		ID:          "basic-monthly",
		Name:        "Basic",
		Description: "For individual technicians",
		Interval:    IntervalMonthly,
		PriceKES:    1500,
		Features:    []string{"50 diagnoses per month", "10 AI-powered diagnoses", "Email support"},
	},
	{
		ID:          "pro-monthly",
		Name:        "Professional",
		Description: "For busy technicians and small teams",
		Interval:    IntervalMonthly,
		PriceKES:    4500,
		Features:    []string{"Unlimited diagnoses", "100 AI-powered diagnoses", "Team access (up to 5)"},
		Popular:     true,
	},
	{
		ID:          "enterprise-monthly",
		Name:        "Enterprise",
		Description: "For service companies and dealers",
		Interval:    IntervalMonthly,
		PriceKES:    15000,
		Features:    []string{"Everything in Pro", "Unlimited team members", "Dedicated support"},
	},
}

// AvailablePlans returns every plan, monthly first, then the discounted yearly variants.
func AvailablePlans() []Plan {
	plans := make([]Plan, 0, 2*len(monthlyPlans))
	plans = append(plans, monthlyPlans...)
	for _, p := range monthlyPlans {
		if p.Free() {
			continue
		}
		y := p
		y.ID = yearlyID(p.ID)
		y.Interval = IntervalYearly
		y.PriceKES = p.PriceKES * 12 * 8 / 10
		y.Features = append(append([]string{}, p.Features...), "20% yearly discount")
		y.Popular = false
		plans = append(plans, y)
	}
	return plans
}

func yearlyID(monthlyID string) string {
	return strings.TrimSuffix(monthlyID, "-monthly") + "-yearly"
}

// GetPlan returns the plan with the given ID.
func GetPlan(id string) (Plan, bool) {
	for _, p := range AvailablePlans() {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
