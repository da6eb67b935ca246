package entity

// Outcome is the consumer's decision for a broker delivery once handling finishes.
type Outcome int

const (
	// OutcomeAck removes the message from the queue.
	OutcomeAck Outcome = iota
	// OutcomeRequeue returns the message to the queue for redelivery.
	OutcomeRequeue
)

func (o Outcome) String() string {
	if o == OutcomeRequeue {
		return "requeue"
	}
	return "ack"
}

// Failure reasons carried in the x-failure-reason header of dead-lettered messages.
const (
	FailureReasonMalformed = "malformed_payload"
	FailureReasonExhausted = "exceeded_delivery_guarantees"
)

// Dead-letter routing shared by the broker topology and the publishers.
const (
	DeadLetterRoutingKey = "failed"
	HeaderFailureReason  = "x-failure-reason"
)
