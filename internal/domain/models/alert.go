package models

import (
	"fmt"
	"time"
)

// AlertCondition identifies how an alert compares prices.
type AlertCondition string

const (
	ConditionAbove         AlertCondition = "above"
	ConditionBelow         AlertCondition = "below"
	ConditionPercentChange AlertCondition = "percent_change"
)

// Alert is a user-defined price alert. Exactly one of TargetPrice or
// PercentChange is meaningful, matching Condition. Transitions
// active -> triggered at most once.
type Alert struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Symbol        string         `json:"symbol"`
	Condition     AlertCondition `json:"condition"`
	TargetPrice   float64        `json:"target_price,omitempty"`
	PercentChange float64        `json:"percent_change,omitempty"`
	BasePrice     float64        `json:"base_price,omitempty"`
	Triggered     bool           `json:"triggered"`
	Active        bool           `json:"active"`
	CreatedAt     time.Time      `json:"created_at"`
	TriggeredAt   *time.Time     `json:"triggered_at,omitempty"`
}

// Validate checks structural invariants of the alert.
func (a *Alert) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	switch a.Condition {
	case ConditionAbove, ConditionBelow:
		if a.TargetPrice <= 0 {
			return fmt.Errorf("target_price must be positive for condition %q", a.Condition)
		}
	case ConditionPercentChange:
		if a.BasePrice <= 0 {
			return fmt.Errorf("base_price must be positive for condition %q", a.Condition)
		}
	default:
		return fmt.Errorf("unknown condition %q", a.Condition)
	}
	return nil
}

// ShouldTrigger reports whether the given price satisfies the alert's
// trigger condition. Already-triggered or inactive alerts never trigger.
//
// For percent_change a positive threshold triggers when the move up from
// the base price reaches the threshold, a negative threshold when the
// move down reaches it. A zero threshold never triggers.
func (a *Alert) ShouldTrigger(price float64) bool {
	if a.Triggered || !a.Active {
		return false
	}
	switch a.Condition {
	case ConditionAbove:
		return price >= a.TargetPrice
	case ConditionBelow:
		return price <= a.TargetPrice
	case ConditionPercentChange:
		if a.BasePrice == 0 {
			return false
		}
		actual := (price - a.BasePrice) / a.BasePrice * 100
		if a.PercentChange > 0 {
			return actual >= a.PercentChange
		}
		if a.PercentChange < 0 {
			return actual <= a.PercentChange
		}
		return false
	}
	return false
}

// TriggeredAlert pairs a fired alert with the snapshot that fired it.
type TriggeredAlert struct {
	Alert    *Alert
	Snapshot *PriceSnapshot
}
