package orchestrator

import (
	"strings"
	"time"

	"github.com/siegecorps/siegebot/internal/models"
)

// State is a step of the per-message pipeline
type State string

const (
	StateReceived       State = "RECEIVED"
	StateRateChecked    State = "RATE_CHECKED"
	StateRejected       State = "REJECTED"
	StateEligible       State = "ELIGIBLE_CHECKED"
	StateIgnored        State = "IGNORED"
	StateContextBuilt   State = "CONTEXT_BUILT"
	StateShortCircuited State = "SHORT_CIRCUITED"
	StateGenerated      State = "GENERATED"
	StatePostProcessed  State = "POST_PROCESSED"
	StateSent           State = "SENT"
	StateFailed         State = "FAILED"
	StateDiscarded      State = "DISCARDED"
)

var terminal = map[State]bool{
	StateRejected:  true,
	StateIgnored:   true,
	StateSent:      true,
	StateFailed:    true,
	StateDiscarded: true,
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool { return terminal[s] }

// transitions lists the legal successors of each state
var transitions = map[State][]State{
	StateReceived:       {StateRateChecked},
	StateRateChecked:    {StateRejected, StateEligible},
	StateEligible:       {StateIgnored, StateContextBuilt, StateSent, StateFailed, StateDiscarded},
	StateContextBuilt:   {StateShortCircuited, StateGenerated, StateFailed},
	StateShortCircuited: {StatePostProcessed},
	StateGenerated:      {StatePostProcessed, StateFailed},
	StatePostProcessed:  {StateSent, StateFailed, StateDiscarded},
}

// CanTransition reports whether to may follow from
func CanTransition(from, to State) bool {
	if from == "" {
		return to == StateReceived
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	// any in-flight state may fail
	return to == StateFailed && !from.Terminal()
}

// Outcome is the trace of one message through the pipeline
type Outcome struct {
	Trace   []State
	Reason  models.EligibilityReason
	Intent  models.IntentKind
	Persona string
	Command string
	Reply   string
	Err     error

	started time.Time
}

func newOutcome(now time.Time) *Outcome {
	return &Outcome{started: now, Trace: []State{StateReceived}}
}

// State is the latest state reached
func (o *Outcome) State() State {
	if len(o.Trace) == 0 {
		return ""
	}
	return o.Trace[len(o.Trace)-1]
}

// Done reports whether the outcome reached a terminal state
func (o *Outcome) Done() bool { return o.State().Terminal() }

// Latency is the time since the message was received
func (o *Outcome) Latency() time.Duration { return time.Since(o.started) }

func (o *Outcome) enter(s State) {
	o.Trace = append(o.Trace, s)
}

func (o *Outcome) String() string {
	parts := make([]string, len(o.Trace))
	for i, s := range o.Trace {
		parts[i] = string(s)
	}
	return strings.Join(parts, " -> ")
}
