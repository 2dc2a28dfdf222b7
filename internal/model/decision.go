package model

import "time"

type DecisionAction string

const (
	DecisionFirstTracking DecisionAction = "first_tracking"
	DecisionNoChange      DecisionAction = "no_change"
	DecisionNotify        DecisionAction = "notify"
	DecisionDebounced     DecisionAction = "debounced"
)

// Decision is the outcome of comparing fresh metadata with a document's baseline.
// Kind is empty for DecisionNoChange.
type Decision struct {
	Action DecisionAction
	Kind   ChangeKind
}

func FirstTracking() Decision {
	return Decision{Action: DecisionFirstTracking, Kind: ChangeKindNewDocument}
}

func NoChange() Decision {
	return Decision{Action: DecisionNoChange}
}

func Notify(kind ChangeKind) Decision {
	return Decision{Action: DecisionNotify, Kind: kind}
}

func Debounced(kind ChangeKind) Decision {
	return Decision{Action: DecisionDebounced, Kind: kind}
}

// ShouldNotify reports whether the poller must send a notification before
// committing the observation.
func (d Decision) ShouldNotify() bool {
	return d.Action == DecisionFirstTracking || d.Action == DecisionNotify
}

// IsChange reports whether the observation differs from the baseline and
// therefore produces a change event.
func (d Decision) IsChange() bool {
	return d.Action != DecisionNoChange
}

func (d Decision) String() string {
	if d.Kind == "" {
		return string(d.Action)
	}
	return string(d.Action) + "(" + string(d.Kind) + ")"
}

// Observation is what the poller hands to the store after one fetch.
// Notified is true only when the notifier accepted the notification.
// PolledAt comes from the poller's clock so that LastNotifiedAt and the
// debounce comparison share one time source.
type Observation struct {
	Metadata Metadata
	Decision Decision
	Notified bool
	PolledAt time.Time
}

// FetchFailure records a failed fetch for one document.
type FetchFailure struct {
	Permanent bool
	Message   string
	At        time.Time
}
