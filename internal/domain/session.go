package domain

import "time"

// Well-known slot key for the gateway's single pending-exchange slot. A
// second top-level message overwrites it; this is the advisory concurrency
// control, not a queue.
const SlotCurrent = "current"

// SessionSlot is the per-agent stored state representing "who is waiting
// for what". Slots are keyed by (agent, key) where key is usually the
// address of the party that initiated the pending exchange.
type SessionSlot struct {
	Agent          string    `json:"agent"`
	Key            string    `json:"key"`
	Sender         string    `json:"sender"`
	MessageID      string    `json:"message_id"`
	LastRequest    string    `json:"last_request"`
	LastResponse   string    `json:"last_response"`
	WaitingForInit bool      `json:"waiting_for_init"`
	CredToken      string    `json:"cred_token"`
	CredDomain     string    `json:"cred_domain"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Result kinds persisted for the ingress boundary to poll.
const (
	ResultKindText  = "text"
	ResultKindImage = "image"
)

// Result is the durable artifact a finished workflow leaves for the end
// user. The ingress polls for it by user address.
type Result struct {
	UserAddr    string    `json:"user_addr"`
	Kind        string    `json:"kind"`
	Data        string    `json:"data"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
