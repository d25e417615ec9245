package services

import (
	"engagement-engine/models"
)

// PointsCalculator turns an action type into a point value from policy.
type PointsCalculator struct {
	Policy *PolicyStore
}

func NewPointsCalculator(policy *PolicyStore) *PointsCalculator {
	return &PointsCalculator{Policy: policy}
}

// BasePoints is the uncapped value of one action: the per-action base plus
// the bonus for meeting attendance or a presented demo.
func (c *PointsCalculator) BasePoints(t models.ActionType) int64 {
	points := c.Policy.Int(models.PolicyPointsPerAction)
	switch t {
	case models.ActionMeetingAttend:
		points += c.Policy.Int(models.PolicyMeetAttendanceBonus)
	case models.ActionDemoPresented:
		points += c.Policy.Int(models.PolicyDemoPresentedBonus)
	}
	if points < 0 {
		return 0
	}
	return points
}

// WeeklyCap is the most a user may be credited within one week key.
func (c *PointsCalculator) WeeklyCap() int64 {
	return c.Policy.Int(models.PolicyMaxPointsPerWeek)
}

// CapPoints applies the weekly cap: max(0, min(base, weeklyCap-alreadyCredited)).
func CapPoints(base, alreadyCredited, weeklyCap int64) int64 {
	remaining := weeklyCap - alreadyCredited
	credited := min(base, remaining)
	if credited < 0 {
		return 0
	}
	return credited
}
