package session

import (
	"testing"

	"pgregory.net/rapid"
)

var allStatuses = []Status{
	StatusCreated,
	StatusNavigated,
	StatusAwaitingLogin,
	StatusAuthenticated,
	StatusScraping,
	StatusCompleted,
	StatusError,
	StatusClosed,
}

// happyPath is the forward chain a successful acquisition walks.
var happyPath = []Status{
	StatusCreated,
	StatusNavigated,
	StatusAwaitingLogin,
	StatusAuthenticated,
	StatusScraping,
	StatusCompleted,
}

func indexOf(s Status) int {
	for i, status := range happyPath {
		if status == s {
			return i
		}
	}
	return -1
}

// TestProperty_Transitions_MatchLifecycle tests the full from/to grid:
// the only legal moves are one step forward along the happy path, any
// active state to error, and anything to closed.
func TestProperty_Transitions_MatchLifecycle(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		from := rapid.SampledFrom(allStatuses).Draw(rt, "from")
		to := rapid.SampledFrom(allStatuses).Draw(rt, "to")

		got := CanTransition(from, to)

		var want bool
		switch {
		case to == StatusClosed:
			want = true
		case from == StatusCompleted || from == StatusError || from == StatusClosed:
			want = false
		case to == StatusError:
			want = true
		default:
			fi, ti := indexOf(from), indexOf(to)
			want = fi >= 0 && ti == fi+1
		}

		if got != want {
			rt.Fatalf("PROPERTY VIOLATION: CanTransition(%s, %s) = %v, want %v", from, to, got, want)
		}
	})
}

// TestProperty_TerminalStatesHaveNoForwardMoves tests that completed,
// error, and closed admit nothing but closing.
func TestProperty_TerminalStatesHaveNoForwardMoves(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusError, StatusClosed} {
		for _, to := range allStatuses {
			if to == StatusClosed {
				continue
			}
			if CanTransition(from, to) {
				t.Fatalf("PROPERTY VIOLATION: %s admits transition to %s", from, to)
			}
		}
	}
}
