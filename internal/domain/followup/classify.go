package followup

import "time"

// Classify assigns a case to exactly one dashboard bucket as of asOf. Only
// pending, non-superseded tasks of the case count. The first matching rule wins:
//
//	Red      a pending task is due before asOf - RedThresholdDays
//	Overdue  a pending task is due before asOf
//	Today    a pending task is due on asOf
//	Awaiting nothing is pending and the caller reports an open dependency
//	Upcoming a pending task is due within LookaheadDays after asOf
//	Grey     anything else, including closed cases
func Classify(c Case, tasks []Task, asOf time.Time, awaiting bool, p Policy) Bucket {
	if c.Status == CaseClosed {
		return BucketGrey
	}
	asOf = Day(asOf)
	redCutoff := AddDays(asOf, -p.RedThresholdDays)
	horizon := AddDays(asOf, p.LookaheadDays)

	var red, overdue, today, upcoming, pending bool
	for _, t := range tasks {
		if t.CaseID != c.ID || t.Status != TaskPending || t.Superseded {
			continue
		}
		pending = true
		due := Day(t.DueDate)
		switch {
		case due.Before(redCutoff):
			red = true
		case due.Before(asOf):
			overdue = true
		case due.Equal(asOf):
			today = true
		case !due.After(horizon):
			upcoming = true
		}
	}

	switch {
	case red:
		return BucketRed
	case overdue:
		return BucketOverdue
	case today:
		return BucketToday
	case !pending && awaiting:
		return BucketAwaiting
	case upcoming:
		return BucketUpcoming
	}
	return BucketGrey
}
