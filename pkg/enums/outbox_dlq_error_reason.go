package enums

// OutboxDLQErrorReason records why the relay parked an outbox row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	// OutboxDLQReasonUnsupported marks event types with no topic route.
	OutboxDLQReasonUnsupported OutboxDLQErrorReason = "unsupported_event"
)

var outboxDLQReasons = map[OutboxDLQErrorReason]struct{}{
	OutboxDLQReasonMaxAttempts:  {},
	OutboxDLQReasonNonRetryable: {},
	OutboxDLQReasonUnsupported:  {},
}

func (r OutboxDLQErrorReason) IsValid() bool {
	_, ok := outboxDLQReasons[r]
	return ok
}

// Replayable reports whether an operator can requeue the row unchanged.
// Unsupported events need a route first.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts
}
