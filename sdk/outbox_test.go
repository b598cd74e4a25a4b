package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_ConfirmSettlesPending(t *testing.T) {
	o := NewOutbox()
	entry := o.Add("c1", MsgTypeText, "hi")
	assert.Equal(t, OutboxPending, entry.State)
	assert.NotEmpty(t, entry.Token)

	got, ok := o.Confirm(&Message{Id: 10, ConversationId: "c1", ClientMsgId: entry.Token, Content: "hi"})
	require.True(t, ok)
	assert.Equal(t, OutboxConfirmed, got.State)
	assert.EqualValues(t, 10, got.Message.Id)
	assert.Empty(t, o.Unsettled("c1"))
}

func TestOutbox_ConfirmIgnoresForeignMessages(t *testing.T) {
	o := NewOutbox()
	o.Add("c1", MsgTypeText, "hi")

	_, ok := o.Confirm(&Message{Id: 1, ClientMsgId: "someone-else"})
	assert.False(t, ok)
	_, ok = o.Confirm(&Message{Id: 2})
	assert.False(t, ok)
	assert.Len(t, o.Unsettled("c1"), 1)
}

func TestOutbox_RejectThenRetry(t *testing.T) {
	o := NewOutbox()
	entry := o.Add("c1", MsgTypeText, "hi")

	got, ok := o.Reject(entry.Token, KindConversationNotActive)
	require.True(t, ok)
	assert.Equal(t, OutboxFailed, got.State)
	assert.Equal(t, KindConversationNotActive, got.ErrorKind)

	// only failed entries can be retried
	got, ok = o.Retry(entry.Token)
	require.True(t, ok)
	assert.Equal(t, OutboxPending, got.State)
	assert.Empty(t, got.ErrorKind)
	_, ok = o.Retry(entry.Token)
	assert.False(t, ok)
}

func TestOutbox_ConfirmationIsFinal(t *testing.T) {
	o := NewOutbox()
	entry := o.Add("c1", MsgTypeText, "hi")
	_, ok := o.Confirm(&Message{Id: 3, ClientMsgId: entry.Token})
	require.True(t, ok)

	_, ok = o.Reject(entry.Token, KindServiceUnavailable)
	assert.False(t, ok)
	got, _ := o.Get(entry.Token)
	assert.Equal(t, OutboxConfirmed, got.State)
}

func TestOutbox_ReconcileAndPrune(t *testing.T) {
	o := NewOutbox()
	a := o.Add("c1", MsgTypeText, "a")
	b := o.Add("c1", MsgTypeText, "b")
	c := o.Add("c2", MsgTypeText, "c")

	n := o.Reconcile([]*Message{
		{Id: 1, ClientMsgId: a.Token},
		{Id: 2, ClientMsgId: "unknown"},
		{Id: 3},
	})
	assert.Equal(t, 1, n)

	unsettled := o.Unsettled("c1")
	require.Len(t, unsettled, 1)
	assert.Equal(t, b.Token, unsettled[0].Token)

	o.Prune()
	_, ok := o.Get(a.Token)
	assert.False(t, ok)
	_, ok = o.Get(c.Token)
	assert.True(t, ok)
}

func TestOutbox_EntriesAreCopies(t *testing.T) {
	o := NewOutbox()
	entry := o.Add("c1", MsgTypeText, "hi")
	entry.State = OutboxConfirmed

	got, _ := o.Get(entry.Token)
	assert.Equal(t, OutboxPending, got.State)
}
