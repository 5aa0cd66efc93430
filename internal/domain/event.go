package domain

import "time"

// EventType tags the payload of an Event.
type EventType string

const (
	EventQuoteUpdated        EventType = "quote_updated"
	EventOpportunityDetected EventType = "opportunity_detected"
	EventOpportunityExpired  EventType = "opportunity_expired"
)

// Default priorities. Lower values are drained first.
const (
	PriorityOpportunityDetected uint8 = 0
	PriorityOpportunityExpired  uint8 = 1
	PriorityQuoteUpdated        uint8 = 5
)

// PriorityOf returns the default priority of an event type.
func PriorityOf(t EventType) uint8 {
	switch t {
	case EventOpportunityDetected:
		return PriorityOpportunityDetected
	case EventOpportunityExpired:
		return PriorityOpportunityExpired
	default:
		return PriorityQuoteUpdated
	}
}

// Event is a typed unit of work for the dispatcher. Sequence is assigned by
// the queue on enqueue. Exactly one of Quote and Opportunity is set.
type Event struct {
	Type        EventType    `json:"event"`
	Priority    uint8        `json:"priority"`
	Sequence    uint64       `json:"sequence"`
	Quote       *Quote       `json:"quote,omitempty"`
	Opportunity *Opportunity `json:"opportunity,omitempty"`
	Reason      CloseReason  `json:"reason,omitempty"`
	At          time.Time    `json:"at"`
}

// NewQuoteEvent wraps an accepted quote.
func NewQuoteEvent(q Quote, at time.Time) Event {
	return Event{Type: EventQuoteUpdated, Priority: PriorityQuoteUpdated, Quote: &q, At: at}
}

// NewDetectedEvent wraps a first detection.
func NewDetectedEvent(o Opportunity, at time.Time) Event {
	return Event{Type: EventOpportunityDetected, Priority: PriorityOpportunityDetected, Opportunity: &o, At: at}
}

// NewExpiredEvent wraps an opportunity leaving the live set.
func NewExpiredEvent(o Opportunity, reason CloseReason, at time.Time) Event {
	return Event{Type: EventOpportunityExpired, Priority: PriorityOpportunityExpired, Opportunity: &o, Reason: reason, At: at}
}
