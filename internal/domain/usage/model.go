package usage

import "time"

// Kinds of usage entries.
const (
	KindKeyExchange = "key_exchange"
	KindAIGenerate  = "ai_generate"
)

// Entry is an append-only audit record in apiUsage. Entries are written for
// analytics and never read back by request handling.
type Entry struct {
	Caller      string    `firestore:"caller" json:"caller"` // uid, "admin-token" for shared tokens, "anonymous" when no caller was identified
	Kind        string    `firestore:"kind" json:"kind"`
	Success     bool      `firestore:"success" json:"success"`
	Reason      string    `firestore:"reason,omitempty" json:"reason,omitempty"`
	TokenPrefix string    `firestore:"tokenPrefix,omitempty" json:"tokenPrefix,omitempty"`
	IP          string    `firestore:"ip,omitempty" json:"ip,omitempty"`
	Model       string    `firestore:"model,omitempty" json:"model,omitempty"`
	PromptChars int       `firestore:"promptChars,omitempty" json:"promptChars,omitempty"`
	Timestamp   time.Time `firestore:"timestamp" json:"timestamp"`
}

// Event is an analytics record in analytics.
type Event struct {
	UID        string         `firestore:"uid" json:"uid"`
	Name       string         `firestore:"name" json:"name"`
	Properties map[string]any `firestore:"properties,omitempty" json:"properties,omitempty"`
	Timestamp  time.Time      `firestore:"timestamp" json:"timestamp"`
}
