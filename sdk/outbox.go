package sdk

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// OutboxState is the client-side state of an optimistic message
type OutboxState string

const (
	// OutboxPending means the message is shown locally and not yet stored
	OutboxPending OutboxState = "local_pending"
	// OutboxConfirmed means the server stored the message
	OutboxConfirmed OutboxState = "confirmed"
	// OutboxFailed means the server refused the message; it may be retried
	OutboxFailed OutboxState = "superseded_by_error"
)

// OutboxEntry is one optimistic message keyed by its correlation token
type OutboxEntry struct {
	Token          string
	ConversationId string
	MsgType        string
	Content        string
	State          OutboxState
	Message        *Message // set once confirmed
	ErrorKind      string   // set while failed
	CreatedAt      time.Time
}

// Outbox tracks optimistic messages until the server confirms or refuses them.
// A confirmation is final: a late rejection of the same token is ignored.
type Outbox struct {
	mu      sync.Mutex
	entries map[string]*OutboxEntry
	order   []string
}

// NewOutbox creates an empty outbox
func NewOutbox() *Outbox {
	return &Outbox{entries: make(map[string]*OutboxEntry)}
}

// Add records a new pending message under a fresh correlation token
func (o *Outbox) Add(conversationId, msgType, content string) *OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry := &OutboxEntry{
		Token:          uuid.NewString(),
		ConversationId: conversationId,
		MsgType:        msgType,
		Content:        content,
		State:          OutboxPending,
		CreatedAt:      time.Now(),
	}
	o.entries[entry.Token] = entry
	o.order = append(o.order, entry.Token)
	return entry.clone()
}

// Confirm settles the entry whose token matches msg.ClientMsgId.
// It reports false when msg does not belong to this outbox.
func (o *Outbox) Confirm(msg *Message) (*OutboxEntry, bool) {
	if msg == nil || msg.ClientMsgId == "" {
		return nil, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[msg.ClientMsgId]
	if !ok {
		return nil, false
	}
	entry.State = OutboxConfirmed
	entry.Message = msg
	entry.ErrorKind = ""
	return entry.clone(), true
}

// Reject marks a pending entry as failed with the server's error kind
func (o *Outbox) Reject(token, errorKind string) (*OutboxEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[token]
	if !ok || entry.State == OutboxConfirmed {
		return nil, false
	}
	entry.State = OutboxFailed
	entry.ErrorKind = errorKind
	return entry.clone(), true
}

// Retry moves a failed entry back to pending so it can be resent with the same token
func (o *Outbox) Retry(token string) (*OutboxEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[token]
	if !ok || entry.State != OutboxFailed {
		return nil, false
	}
	entry.State = OutboxPending
	entry.ErrorKind = ""
	return entry.clone(), true
}

// Reconcile confirms every entry whose token appears in fetched history,
// which settles sends whose confirmation was lost with a connection
func (o *Outbox) Reconcile(history []*Message) int {
	n := 0
	for _, msg := range history {
		if entry, ok := o.Get(msg.ClientMsgId); ok && entry.State != OutboxConfirmed {
			if _, ok := o.Confirm(msg); ok {
				n++
			}
		}
	}
	return n
}

// Get returns a copy of the entry for token
func (o *Outbox) Get(token string) (*OutboxEntry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[token]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// Unsettled returns pending and failed entries of a conversation in send order
func (o *Outbox) Unsettled(conversationId string) []*OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []*OutboxEntry
	for _, token := range o.order {
		entry := o.entries[token]
		if entry.ConversationId == conversationId && entry.State != OutboxConfirmed {
			out = append(out, entry.clone())
		}
	}
	return out
}

// Prune drops confirmed entries
func (o *Outbox) Prune() {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.order[:0]
	for _, token := range o.order {
		if o.entries[token].State == OutboxConfirmed {
			delete(o.entries, token)
			continue
		}
		kept = append(kept, token)
	}
	o.order = kept
}

func (e *OutboxEntry) clone() *OutboxEntry {
	c := *e
	return &c
}
