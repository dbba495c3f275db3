package calllog

import "sort"

// Summarize derives the communication status from logs in any order. The
// latest attempt decides the status. Failed attempts are counted newest
// first and stop at the most recent confirmed visit.
func Summarize(logs []Log) Summary {
	if len(logs) == 0 {
		return Summary{Status: StatusNone}
	}
	sorted := append([]Log(nil), logs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	latest := sorted[0]
	s := Summary{LastOutcome: &latest.Outcome, LastCallAt: &latest.CreatedAt}
	for _, l := range sorted {
		if l.Outcome == OutcomeConfirmedVisit {
			break
		}
		if l.Outcome.Failed() {
			s.FailedAttempts++
		}
	}

	switch {
	case latest.Outcome == OutcomeConfirmedVisit:
		s.Status = StatusConfirmed
	case latest.Outcome == OutcomeShifted:
		s.Status = StatusLost
	case latest.Outcome == OutcomeInvalidNumber:
		s.Status = StatusInvalidContact
	case latest.Outcome == OutcomeCallBackLater:
		s.Status = StatusCallBackLater
	case latest.Outcome.Failed():
		s.Status = StatusNotReachable
	default:
		s.Status = StatusNone
	}
	return s
}
