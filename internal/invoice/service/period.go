package service

import (
	"time"

	"github.com/smallbiznis/cashback/internal/clock"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	plandomain "github.com/smallbiznis/cashback/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
)

// nextDueDate advances prev by one billing cycle. The day of month follows
// anchorDay when set, otherwise prev's day, clamped to the target month length.
func nextDueDate(prev time.Time, cycle subscriptiondomain.BillingCycle, anchorDay *int16) (time.Time, error) {
	prev = clock.StartOfDay(prev)

	day := prev.Day()
	if anchorDay != nil && *anchorDay >= 1 && *anchorDay <= 31 {
		day = int(*anchorDay)
	}

	year, month := prev.Year(), prev.Month()
	switch cycle {
	case subscriptiondomain.BillingCycleMonthly:
		month++
		if month > time.December {
			month = time.January
			year++
		}
	case subscriptiondomain.BillingCycleYearly:
		year++
	default:
		return time.Time{}, invoicedomain.ErrInvalidBillingCycle
	}

	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}

// anchorDayFor returns the stored anchor day, or the day of the first due
// date billed when none was set.
func anchorDayFor(sub subscriptiondomain.Subscription, dueDate time.Time) int16 {
	if sub.BillingAnchorDay != nil && *sub.BillingAnchorDay >= 1 && *sub.BillingAnchorDay <= 31 {
		return *sub.BillingAnchorDay
	}
	return int16(dueDate.Day())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// amountFor copies the plan price matching the cycle onto the invoice.
func amountFor(plan plandomain.Plan, cycle subscriptiondomain.BillingCycle) int64 {
	if cycle == subscriptiondomain.BillingCycleYearly {
		return plan.AnnualPrice
	}
	return plan.MonthlyPrice
}
