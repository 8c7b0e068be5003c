package event

import (
	"github.com/noodles/ramen/internal/core/slot"
	"github.com/noodles/ramen/internal/core/value"
)

// AnomalyKind classifies a non-fatal protocol problem.
type AnomalyKind string

const (
	AnomalyMalformedFrame  AnomalyKind = "malformed_frame"
	AnomalyMalformedID     AnomalyKind = "malformed_message_id"
	AnomalyUnknownMessage  AnomalyKind = "unknown_message"
	AnomalyMissingSlot     AnomalyKind = "missing_slot"
	AnomalyMalformedRecord AnomalyKind = "malformed_record"
	AnomalyHandlerPanic    AnomalyKind = "handler_panic"
	AnomalyUnknownInvoke   AnomalyKind = "unknown_invoke"
)

// Anomaly reports a message that was dropped or only partly applied.
type Anomaly struct {
	Kind      AnomalyKind
	MessageID uint64
	Handler   string
	Err       error
}

// PhaseChanged fires on synchronization-complete and document-reset.
type PhaseChanged struct {
	From string
	To   string
}

// DocumentReset fires after every store has been cleared.
type DocumentReset struct{}

// SignalInvoked mirrors a signal-invoked message.
type SignalInvoked struct {
	Signal  slot.ID
	Context *value.Record
	Args    []value.Value
}

// MethodReplied mirrors a method-reply message.
type MethodReplied struct {
	InvokeID string
	Failed   bool
}
