package worker

import (
	"fmt"
	"strings"

	"sjsage522/stockscraper/internal/model"
	"sjsage522/stockscraper/services/sink"
)

// State is the lifecycle position of one candidate item
type State string

const (
	StatePending        State = "PENDING"
	StateNavigated      State = "NAVIGATED"
	StateExtracted      State = "EXTRACTED"
	StateAccepted       State = "ACCEPTED"
	StateRejectedOld    State = "REJECTED_OLD"
	StateRejectedNoDate State = "REJECTED_NO_DATE"
	StatePersisted      State = "PERSISTED"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	switch s {
	case StatePersisted, StateFailed, StateRejectedOld, StateRejectedNoDate:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StatePending:   {StateNavigated, StateFailed},
	StateNavigated: {StateExtracted, StateFailed},
	StateExtracted: {StateAccepted, StateRejectedOld, StateRejectedNoDate, StateFailed},
	StateAccepted:  {StatePersisted, StateFailed},
}

// candidate tracks one item through the pipeline
type candidate struct {
	ref   string
	state State
	item  model.Item
}

func newCandidate(ref string) *candidate {
	return &candidate{ref: ref, state: StatePending}
}

// advance moves the candidate to next, refusing moves the lifecycle does
// not allow
func (c *candidate) advance(next State) error {
	for _, allowed := range transitions[c.state] {
		if allowed == next {
			c.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s for %s", c.state, next, c.ref)
}

// Summary counts what happened to one source's candidates. States holds
// the latest state of every candidate.
type Summary struct {
	Source     model.Source
	Kind       model.Kind
	Discovered int
	Degraded   int
	Accepted   int
	Duplicates int
	States     map[State]int
	Err        error
}

func newSummary(src model.Source, kind model.Kind) *Summary {
	return &Summary{Source: src, Kind: kind, States: make(map[State]int)}
}

func (s *Summary) record(c *candidate) {
	s.States[c.state]++
	if c.state == StateAccepted {
		s.Accepted++
	}
}

func (s *Summary) move(from, to State, n int) {
	if n <= 0 {
		return
	}
	s.States[from] -= n
	s.States[to] += n
}

func (s Summary) String() string {
	var parts []string
	for _, state := range []State{StateAccepted, StatePersisted, StateRejectedOld, StateRejectedNoDate, StateFailed} {
		if n := s.States[state]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", strings.ToLower(string(state)), n))
		}
	}
	return fmt.Sprintf("%s: discovered=%d %s", s.Source, s.Discovered, strings.Join(parts, " "))
}

// applyDedupe takes items dropped as duplicates out of the accepted count
func applyDedupe(summaries []*Summary, kept []model.Item) {
	keptBySource := make(map[model.Source]int)
	for _, item := range kept {
		keptBySource[item.Source]++
	}
	for _, s := range summaries {
		s.Duplicates = s.States[StateAccepted] - keptBySource[s.Source]
		if s.Duplicates < 0 {
			s.Duplicates = 0
		}
		s.States[StateAccepted] -= s.Duplicates
	}
}

// applyPersistence moves accepted items to their persisted or failed state
func applyPersistence(summaries []*Summary, items []model.Item, result sink.Result) {
	bySource := make(map[model.Source]*Summary, len(summaries))
	for _, s := range summaries {
		bySource[s.Source] = s
	}
	for i, item := range items {
		s, ok := bySource[item.Source]
		if !ok || i >= len(result.Statuses) {
			continue
		}
		switch result.Statuses[i] {
		case sink.StatusInserted, sink.StatusIgnored:
			s.move(StateAccepted, StatePersisted, 1)
		case sink.StatusFailed, sink.StatusNotAttempted:
			s.move(StateAccepted, StateFailed, 1)
		}
	}
}
