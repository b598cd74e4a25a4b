package repository_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/mbeoliero/trato/internal/entity"
	"github.com/mbeoliero/trato/internal/repository"
	"github.com/mbeoliero/trato/internal/testutil"
	"github.com/mbeoliero/trato/pkg/constant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var convSeq int

func newConversation(customerId, providerId, bookingId, status string) *entity.Conversation {
	convSeq++
	return &entity.Conversation{
		Id:          "conv-" + strconv.Itoa(convSeq),
		CustomerId:  customerId,
		ProviderId:  providerId,
		BookingId:   bookingId,
		InitiatorId: customerId,
		Status:      status,
	}
}

func mustCreate(t *testing.T, repos *repository.Repositories, conv *entity.Conversation) *entity.Conversation {
	t.Helper()
	got, created, err := repos.Conversation.CreateOrGet(context.Background(), conv)
	require.NoError(t, err)
	require.True(t, created)
	return got
}

func mustAppend(t *testing.T, repos *repository.Repositories, convId, senderId, content string) *entity.Message {
	t.Helper()
	msg := &entity.Message{ConversationId: convId, SenderId: senderId, MsgType: constant.MsgTypeText, Content: content}
	err := repos.Transaction(context.Background(), func(tx *gorm.DB) error {
		n, err := repos.Conversation.Touch(context.Background(), tx, convId, entity.SendableStatuses(msg.MsgType))
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("conversation %s not sendable", convId)
		}
		_, err = repos.Message.Create(context.Background(), tx, msg)
		return err
	})
	require.NoError(t, err)
	return msg
}

func TestConversationRepo_CreateOrGetDeduplicates(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()

	first := mustCreate(t, repos, newConversation("7", "9", "42", constant.ConvStatusPending))

	again, created, err := repos.Conversation.CreateOrGet(ctx, newConversation("7", "9", "42", constant.ConvStatusPending))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Id, again.Id)

	other, created, err := repos.Conversation.CreateOrGet(ctx, newConversation("7", "9", "", constant.ConvStatusPending))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.Id, other.Id)
}

func TestConversationRepo_CreateOrGetConcurrent(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		conv := newConversation("7", "9", "42", constant.ConvStatusPending)
		wg.Add(1)
		go func(i int, conv *entity.Conversation) {
			defer wg.Done()
			got, _, err := repos.Conversation.CreateOrGet(ctx, conv)
			if assert.NoError(t, err) {
				ids[i] = got.Id
			}
		}(i, conv)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var count int64
	require.NoError(t, repos.DB.Model(&entity.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConversationRepo_TransitionCompareAndSwap(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusPending))

	n, err := repos.Conversation.Transition(ctx, nil, conv.Id, entity.EventAccept, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repos.Conversation.Transition(ctx, nil, conv.Id, entity.EventReject, map[string]interface{}{"reject_reason": "late"})
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repos.Conversation.GetById(ctx, nil, conv.Id)
	require.NoError(t, err)
	assert.Equal(t, constant.ConvStatusActive, got.Status)
	assert.Empty(t, got.RejectReason)
	assert.GreaterOrEqual(t, got.UpdatedAt, conv.UpdatedAt)

	n, err = repos.Conversation.Transition(ctx, nil, "missing", entity.EventCancel, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repos.Conversation.Transition(ctx, nil, conv.Id, entity.Event("archive"), nil)
	assert.Error(t, err)
}

func TestConversationRepo_TransitionRace(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusPending))

	var wg sync.WaitGroup
	results := make([]int64, 2)
	for i, event := range []entity.Event{entity.EventAccept, entity.EventReject} {
		wg.Add(1)
		go func(i int, event entity.Event) {
			defer wg.Done()
			n, err := repos.Conversation.Transition(ctx, nil, conv.Id, event, nil)
			assert.NoError(t, err)
			results[i] = n
		}(i, event)
	}
	wg.Wait()

	assert.Equal(t, int64(1), results[0]+results[1])
}

func TestConversationRepo_TouchOnlyInStatuses(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusPending))

	n, err := repos.Conversation.Touch(ctx, nil, conv.Id, []string{constant.ConvStatusActive})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repos.Conversation.Touch(ctx, nil, conv.Id, entity.SendableStatuses(constant.MsgTypeSystem))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestConversationRepo_ListByUser(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	mustCreate(t, repos, newConversation("7", "9", "1", constant.ConvStatusPending))
	mustCreate(t, repos, newConversation("9", "7", "2", constant.ConvStatusPending))
	mustCreate(t, repos, newConversation("8", "10", "3", constant.ConvStatusPending))

	convs, err := repos.Conversation.ListByUser(ctx, "7")
	require.NoError(t, err)
	assert.Len(t, convs, 2)
}

func TestConversationRepo_DeleteCascades(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))
	keep := mustCreate(t, repos, newConversation("7", "9", "1", constant.ConvStatusActive))
	mustAppend(t, repos, conv.Id, "7", "one")
	mustAppend(t, repos, conv.Id, "9", "two")
	mustAppend(t, repos, keep.Id, "9", "stays")

	err := repos.Transaction(ctx, func(tx *gorm.DB) error {
		n, err := repos.Conversation.Delete(ctx, tx, conv.Id)
		assert.Equal(t, int64(1), n)
		return err
	})
	require.NoError(t, err)

	got, err := repos.Conversation.GetById(ctx, nil, conv.Id)
	require.NoError(t, err)
	assert.Nil(t, got)

	var count int64
	require.NoError(t, repos.DB.Model(&entity.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMessageRepo_CreateIsIdempotentPerClientMsgId(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))

	token := "tok-1"
	first := &entity.Message{ConversationId: conv.Id, SenderId: "7", ClientMsgId: &token, MsgType: constant.MsgTypeText, Content: "hi"}
	inserted, err := repos.Message.Create(ctx, nil, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &entity.Message{ConversationId: conv.Id, SenderId: "7", ClientMsgId: &token, MsgType: constant.MsgTypeText, Content: "hi again"}
	inserted, err = repos.Message.Create(ctx, nil, dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repos.Message.GetByClientMsgId(ctx, nil, "7", token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, first.Id, got.Id)
	assert.Equal(t, "hi", got.Content)

	// Same token from the other participant is a different message
	other := &entity.Message{ConversationId: conv.Id, SenderId: "9", ClientMsgId: &token, MsgType: constant.MsgTypeText, Content: "yo"}
	inserted, err = repos.Message.Create(ctx, nil, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	missing, err := repos.Message.GetByClientMsgId(ctx, nil, "7", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMessageRepo_SystemMessagesWithoutToken(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))

	for i := 0; i < 2; i++ {
		inserted, err := repos.Message.Create(ctx, nil, &entity.Message{
			ConversationId: conv.Id, SenderId: "9", MsgType: constant.MsgTypeSystem, Content: "accepted",
		})
		require.NoError(t, err)
		assert.True(t, inserted)
	}
}

func TestMessageRepo_ListPageRoundTrip(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))

	var want []int64
	for i := 0; i < 7; i++ {
		want = append(want, mustAppend(t, repos, conv.Id, "7", fmt.Sprintf("m%d", i)).Id)
	}

	var got []int64
	var cursor *entity.Cursor
	for page := 0; ; page++ {
		msgs, hasMore, err := repos.Message.ListPage(ctx, conv.Id, cursor, 3)
		require.NoError(t, err)
		for _, m := range msgs {
			got = append(got, m.Id)
		}
		if page == 0 {
			// appended while paginating; must show up exactly once at the end
			want = append(want, mustAppend(t, repos, conv.Id, "9", "late").Id)
		}
		if !hasMore {
			break
		}
		cursor = entity.CursorAfter(msgs[len(msgs)-1])
	}

	assert.Equal(t, want, got)
}

func TestMessageRepo_ListPageOrdersByTimestampThenId(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))

	rows := []*entity.Message{
		{ConversationId: conv.Id, SenderId: "7", MsgType: constant.MsgTypeText, Content: "b", CreatedAt: 200},
		{ConversationId: conv.Id, SenderId: "7", MsgType: constant.MsgTypeText, Content: "a", CreatedAt: 100},
		{ConversationId: conv.Id, SenderId: "9", MsgType: constant.MsgTypeText, Content: "c", CreatedAt: 200},
	}
	require.NoError(t, repos.DB.Create(&rows).Error)

	msgs, hasMore, err := repos.Message.ListPage(ctx, conv.Id, nil, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "b", msgs[1].Content)

	msgs, hasMore, err = repos.Message.ListPage(ctx, conv.Id, entity.CursorAfter(msgs[1]), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, hasMore)
	assert.Equal(t, "c", msgs[0].Content)
}

func TestMessageRepo_ListPageCapsLimit(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))

	rows := make([]*entity.Message, 0, constant.MaxPageSize+5)
	for i := 0; i < constant.MaxPageSize+5; i++ {
		rows = append(rows, &entity.Message{ConversationId: conv.Id, SenderId: "7", MsgType: constant.MsgTypeText, Content: "x", CreatedAt: int64(i + 1)})
	}
	require.NoError(t, repos.DB.CreateInBatches(&rows, 50).Error)

	msgs, hasMore, err := repos.Message.ListPage(ctx, conv.Id, nil, 1000)
	require.NoError(t, err)
	assert.Len(t, msgs, constant.MaxPageSize)
	assert.True(t, hasMore)

	msgs, _, err = repos.Message.ListPage(ctx, conv.Id, nil, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, constant.DefaultPageSize)
}

func TestMessageRepo_MarkReadByRecipientIsIdempotent(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))
	mustAppend(t, repos, conv.Id, "7", "one")
	mustAppend(t, repos, conv.Id, "7", "two")
	mustAppend(t, repos, conv.Id, "9", "mine")

	n, err := repos.Message.MarkReadByRecipient(ctx, conv.Id, "9")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repos.Message.MarkReadByRecipient(ctx, conv.Id, "9")
	require.NoError(t, err)
	assert.Zero(t, n)

	// the provider's own message is still unread for the customer
	count, err := repos.Conversation.UnreadCount(ctx, "7", conv.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMessageRepo_GetLatest(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()
	conv := mustCreate(t, repos, newConversation("7", "9", "", constant.ConvStatusActive))

	latest, err := repos.Message.GetLatest(ctx, conv.Id)
	require.NoError(t, err)
	assert.Nil(t, latest)

	mustAppend(t, repos, conv.Id, "7", "one")
	last := mustAppend(t, repos, conv.Id, "9", "two")

	latest, err = repos.Message.GetLatest(ctx, conv.Id)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, last.Id, latest.Id)
}

func TestConversationRepo_UnreadSummary(t *testing.T) {
	repos := testutil.NewRepos(t)
	ctx := context.Background()

	empty := mustCreate(t, repos, newConversation("7", "9", "empty", constant.ConvStatusPending))
	older := mustCreate(t, repos, newConversation("7", "9", "older", constant.ConvStatusActive))
	newer := mustCreate(t, repos, newConversation("12", "9", "newer", constant.ConvStatusActive))
	mustCreate(t, repos, newConversation("7", "13", "foreign", constant.ConvStatusActive))

	require.NoError(t, repos.DB.Create(&[]*entity.Message{
		{ConversationId: older.Id, SenderId: "7", MsgType: constant.MsgTypeText, Content: "a", CreatedAt: 100},
		{ConversationId: older.Id, SenderId: "9", MsgType: constant.MsgTypeText, Content: "b", CreatedAt: 110},
		{ConversationId: newer.Id, SenderId: "12", MsgType: constant.MsgTypeText, Content: "c", CreatedAt: 200},
		{ConversationId: newer.Id, SenderId: "12", MsgType: constant.MsgTypeText, Content: "d", CreatedAt: 210, IsRead: true},
		{ConversationId: newer.Id, SenderId: "12", MsgType: constant.MsgTypeText, Content: "e", CreatedAt: 220},
	}).Error)

	entries, err := repos.Conversation.UnreadSummary(ctx, "9")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, newer.Id, entries[0].ConversationId)
	assert.Equal(t, int64(2), entries[0].UnreadCount)
	require.NotNil(t, entries[0].LastMessageAt)
	assert.Equal(t, int64(220), *entries[0].LastMessageAt)

	assert.Equal(t, older.Id, entries[1].ConversationId)
	assert.Equal(t, int64(1), entries[1].UnreadCount)
	assert.Equal(t, int64(110), *entries[1].LastMessageAt)

	assert.Equal(t, empty.Id, entries[2].ConversationId)
	assert.Zero(t, entries[2].UnreadCount)
	assert.Nil(t, entries[2].LastMessageAt)

	// the customer only counts messages from the provider
	entries, err = repos.Conversation.UnreadSummary(ctx, "7")
	require.NoError(t, err)
	byId := map[string]*entity.UnreadEntry{}
	for _, e := range entries {
		byId[e.ConversationId] = e
	}
	assert.Equal(t, int64(1), byId[older.Id].UnreadCount)

	none, err := repos.Conversation.UnreadSummary(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}
