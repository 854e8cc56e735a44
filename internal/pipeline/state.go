// Package pipeline drives one acquisition and selection run.
//
// A run is single-threaded and assumes it is the only writer of the corpus
// and history; callers must not start two runs against the same store.
package pipeline

import (
	"molt-highlights/internal/core/domain"
)

// State is a step of the run state machine.
type State int

const (
	Idle State = iota
	Fetching
	AbortedFetch
	Merging
	Scoring
	Selecting
	AwaitingCredential
	Publishing
	Persisted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case AbortedFetch:
		return "aborted_fetch"
	case Merging:
		return "merging"
	case Scoring:
		return "scoring"
	case Selecting:
		return "selecting"
	case AwaitingCredential:
		return "awaiting_credential"
	case Publishing:
		return "publishing"
	case Persisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// Report describes how a run ended.
type Report struct {
	RunID string
	// State is terminal: AbortedFetch or Persisted. Reached is the last
	// working state before persistence.
	State   State
	Reached State

	Source   string
	Fetched  int
	Inserted int

	Candidates []domain.Post
	Winner     *domain.Post
	Text       string
	Published  bool

	// Err explains why nothing was published, when that is the case.
	Err error
}
