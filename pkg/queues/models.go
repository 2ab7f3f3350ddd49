package queues

import "time"

// Queue describes a message queue.
type Queue struct {
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Message is a queued message. Body round-trips as base64 on the wire.
// LockToken and LockedUntil are populated on peek-lock receives and are
// required to settle the message. A zero TimeToLive means the message
// never expires; otherwise it stops being delivered TimeToLive after
// being enqueued.
type Message struct {
	ID             string        `json:"id"`
	SequenceNumber int64         `json:"sequence_number"`
	Body           []byte        `json:"body"`
	ContentType    string        `json:"content_type,omitempty"`
	EnqueuedAt     time.Time     `json:"enqueued_at"`
	DeliveryCount  int           `json:"delivery_count"`
	LockToken      string        `json:"lock_token,omitempty"`
	LockedUntil    time.Time     `json:"locked_until"`
	TimeToLive     time.Duration `json:"time_to_live,omitempty"`
}
