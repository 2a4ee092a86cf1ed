package models

const (
	// DefaultPendingKey holds the serialized pending action list.
	DefaultPendingKey = "erp:offline:pending_actions"
	// DefaultDeadLetterKey holds actions evicted after exhausting their retries.
	DefaultDeadLetterKey = "erp:offline:dead_letters"
)
