package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateNotification OutboxAggregateType = "notification"
	AggregateOrder        OutboxAggregateType = "order"
	AggregateDispute      OutboxAggregateType = "dispute"
	AggregatePayout       OutboxAggregateType = "payout"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateNotification, AggregateOrder, AggregateDispute, AggregatePayout:
		return true
	}
	return false
}

// OutboxEventType names an event relayed to downstream consumers. Each type
// belongs to exactly one aggregate.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventOrderSettled          OutboxEventType = "order_settled"
	EventDisputeResolved       OutboxEventType = "dispute_resolved"
	EventPayoutSettled         OutboxEventType = "payout_settled"
)

var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventNotificationRequested: AggregateNotification,
	EventOrderSettled:          AggregateOrder,
	EventDisputeResolved:       AggregateDispute,
	EventPayoutSettled:         AggregatePayout,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type the event is emitted for, or "" when
// the event type is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}
