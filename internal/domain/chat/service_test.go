package chat

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitloop-server/services/chat-api/internal/config"
	"fitloop-server/services/chat-api/internal/utils/platformerrors"
)

func testConfig() *config.Config {
	return &config.Config{
		PreviewLength:      80,
		DefaultPageSize:    50,
		MaxAttachmentBytes: 20 * 1024 * 1024,
		AttachmentTimeout:  5 * time.Second,
	}
}

func pairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

type memConversations struct {
	mu       sync.Mutex
	nextID   uint
	byPair   map[string]*Conversation
	byPublic map[string]*Conversation

	loseCreateRace    bool
	recordActivityErr error
}

func newMemConversations() *memConversations {
	return &memConversations{
		byPair:   make(map[string]*Conversation),
		byPublic: make(map[string]*Conversation),
	}
}

func (m *memConversations) insert(conv *Conversation) {
	m.nextID++
	conv.ID = m.nextID
	m.byPair[pairKey(conv.Participants[0], conv.Participants[1])] = conv
	m.byPublic[conv.PublicID] = conv
}

func (m *memConversations) Create(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(conv.Participants[0], conv.Participants[1])
	if m.loseCreateRace {
		// another writer got there first
		m.loseCreateRace = false
		winner := NewConversation("conv_winner", conv.Participants[0], conv.Participants[1])
		m.insert(winner)
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "conversation already exists", nil, "")
	}
	if _, exists := m.byPair[key]; exists {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeConflict, "conversation already exists", nil, "")
	}
	m.insert(conv)
	return nil
}

func (m *memConversations) FindByPublicID(ctx context.Context, publicID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.byPublic[publicID]
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
	}
	return conv, nil
}

func (m *memConversations) FindByParticipants(ctx context.Context, userA, userB string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPair[pairKey(userA, userB)], nil
}

func (m *memConversations) ListByUser(ctx context.Context, userID string) ([]*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Conversation
	for _, conv := range m.byPublic {
		if conv.HasParticipant(userID) {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (m *memConversations) RecordActivity(ctx context.Context, conversationID uint, preview string, at time.Time, recipientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordActivityErr != nil {
		return m.recordActivityErr
	}
	for _, conv := range m.byPublic {
		if conv.ID == conversationID {
			conv.LastMessagePreview = preview
			if at.After(conv.LastActivityAt) {
				conv.LastActivityAt = at
			}
			conv.Unread[recipientID]++
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
}

func (m *memConversations) ResetUnread(ctx context.Context, conversationID uint, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.byPublic {
		if conv.ID == conversationID {
			conv.Unread[userID] = 0
			return nil
		}
	}
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "conversation not found", nil, "")
}

type memMessages struct {
	mu     sync.Mutex
	nextID uint
	msgs   []*Message
}

func (m *memMessages) Create(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	msg.ID = m.nextID
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *memMessages) ListByConversationID(ctx context.Context, conversationID uint, limit int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memStore struct {
	uploads map[string]int64
}

func (m *memStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if m.uploads == nil {
		m.uploads = make(map[string]int64)
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", err
	}
	m.uploads[key] = size
	return "https://cdn.fitloop.test/" + key, nil
}

type publishedEvent struct {
	topic   string
	event   string
	payload any
}

type memBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (m *memBroadcaster) Publish(ctx context.Context, topic, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, publishedEvent{topic: topic, event: event, payload: payload})
	return nil
}

func (m *memBroadcaster) byEvent(event string) []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedEvent
	for _, e := range m.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	service       *ServiceImpl
	conversations *memConversations
	messages      *memMessages
	store         *memStore
	broadcaster   *memBroadcaster
}

func newFixture() *fixture {
	conversations := newMemConversations()
	messages := &memMessages{}
	store := &memStore{}
	broadcaster := &memBroadcaster{}
	service := NewService(testConfig(), conversations, messages, store, broadcaster, zerolog.Nop())
	return &fixture{
		service:       service,
		conversations: conversations,
		messages:      messages,
		store:         store,
		broadcaster:   broadcaster,
	}
}

func TestResolveOrCreate_SymmetricAndIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first, created, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 0, first.Unread["alice"])
	assert.Equal(t, 0, first.Unread["bob"])

	// reversed participant order resolves the same conversation
	second, created, err := f.service.ResolveOrCreate(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PublicID, second.PublicID)

	third, created, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.PublicID, third.PublicID)
}

func TestResolveOrCreate_RejectsInvalidParticipants(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, _, err := f.service.ResolveOrCreate(ctx, "", "bob")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))

	_, _, err = f.service.ResolveOrCreate(ctx, "alice", "alice")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestResolveOrCreate_LostRaceResolvesWinner(t *testing.T) {
	f := newFixture()
	f.conversations.loseCreateRace = true

	conv, created, err := f.service.ResolveOrCreate(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "conv_winner", conv.PublicID)
}

func TestResolveOrCreate_PublishesCreatedEvent(t *testing.T) {
	f := newFixture()

	conv, _, err := f.service.ResolveOrCreate(context.Background(), "alice", "bob")
	require.NoError(t, err)

	events := f.broadcaster.byEvent(EventCreated)
	require.Len(t, events, 1)
	assert.Equal(t, SessionsTopic(), events[0].topic)
	assert.Equal(t, conv, events[0].payload)
}

func TestSendMessage_IncrementsRecipientUnread(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.service.SendMessage(ctx, SendMessageInput{
			ConversationID: conv.PublicID,
			SenderID:       "alice",
			Content:        "hey",
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, conv.Unread["bob"])
	assert.Equal(t, 0, conv.Unread["alice"])

	require.NoError(t, f.service.MarkRead(ctx, conv.PublicID, "bob"))
	assert.Equal(t, 0, conv.Unread["bob"])
}

func TestSendMessage_ConcurrentSendsCountEveryIncrement(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	const senders = 25
	errs := make(chan error, senders)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.SendMessage(ctx, SendMessageInput{
				ConversationID: conv.PublicID,
				SenderID:       "alice",
				Content:        "hey",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// no increment may be lost to a racing writer
	assert.Equal(t, senders, conv.Unread["bob"])
	assert.Equal(t, 0, conv.Unread["alice"])

	msgs, err := f.service.ListMessages(ctx, conv.PublicID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, senders)
}

func TestSendMessage_RejectsEmpty(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Content:        "   ",
	})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
	assert.Empty(t, f.messages.msgs)
}

func TestSendMessage_RejectsNonParticipant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "mallory",
		Content:        "hi",
	})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	f := newFixture()

	_, err := f.service.SendMessage(context.Background(), SendMessageInput{
		ConversationID: "conv_missing",
		SenderID:       "alice",
		Content:        "hi",
	})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound))
}

func TestSendMessage_AttachmentOnly(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	msg, err := f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Attachment: &AttachmentUpload{
			Name: "workout.png",
			Data: pngHeader,
		},
	})
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)

	att := msg.Attachments[0]
	assert.Equal(t, "workout.png", att.Name)
	assert.Equal(t, int64(len(pngHeader)), att.SizeBytes)
	assert.True(t, strings.HasPrefix(att.URL, "https://cdn.fitloop.test/attachments/"+conv.PublicID+"/"), att.URL)

	// attachment-only message carries the placeholder preview
	assert.Equal(t, "[attachment]", conv.LastMessagePreview)
}

func TestSendMessage_AttachmentTooLarge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Attachment: &AttachmentUpload{
			Name: "huge.bin",
			Data: make([]byte, 21*1024*1024),
		},
	})
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestSendMessage_PreviewTruncation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	long := strings.Repeat("Ω", 200)
	_, err = f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Content:        long,
	})
	require.NoError(t, err)

	assert.Equal(t, 80, len([]rune(conv.LastMessagePreview)))
	assert.Equal(t, strings.Repeat("Ω", 80), conv.LastMessagePreview)
}

func TestSendMessage_PartialSummaryFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	f.conversations.recordActivityErr = platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError, "write failed", nil, "")

	msg, err := f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Content:        "hello",
	})
	require.NotNil(t, msg)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypePartialUpdate))

	// the message itself is durable
	require.Len(t, f.messages.msgs, 1)
	assert.Equal(t, msg.PublicID, f.messages.msgs[0].PublicID)
}

func TestSendMessage_BroadcastsToConversationAndInbox(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	msg, err := f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Content:        "hello bob",
	})
	require.NoError(t, err)

	events := f.broadcaster.byEvent(EventMessage)
	require.Len(t, events, 2)
	assert.Equal(t, ConversationTopic(conv.PublicID), events[0].topic)
	assert.Equal(t, InboxTopic("bob"), events[1].topic)
	for _, e := range events {
		assert.Equal(t, msg, e.payload)
	}
}

func TestSendMessage_BroadcastFailureDoesNotFailSend(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	f.broadcaster.err = io.ErrClosedPipe

	msg, err := f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: conv.PublicID,
		SenderID:       "alice",
		Content:        "hello",
	})
	require.NoError(t, err)
	assert.NotNil(t, msg)
}

func TestMarkRead_BroadcastsReceipt(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, f.service.MarkRead(ctx, conv.PublicID, "bob"))

	events := f.broadcaster.byEvent(EventRead)
	require.Len(t, events, 2)
	assert.Equal(t, ConversationTopic(conv.PublicID), events[0].topic)
	assert.Equal(t, InboxTopic("bob"), events[1].topic)

	receipt, ok := events[0].payload.(ReadReceipt)
	require.True(t, ok)
	assert.Equal(t, conv.PublicID, receipt.ConversationID)
	assert.Equal(t, "bob", receipt.UserID)
}

func TestMarkRead_RejectsNonParticipant(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	err = f.service.MarkRead(ctx, conv.PublicID, "mallory")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeForbidden))
}

func TestListMessages_ChronologicalOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := f.service.SendMessage(ctx, SendMessageInput{
			ConversationID: conv.PublicID,
			SenderID:       "alice",
			Content:        content,
		})
		require.NoError(t, err)
	}

	msgs, err := f.service.ListMessages(ctx, conv.PublicID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestListConversations_MostRecentFirst(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	withBob, _, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	withCarol, _, err := f.service.ResolveOrCreate(ctx, "alice", "carol")
	require.NoError(t, err)

	// force distinct activity timestamps
	f.conversations.byPublic[withBob.PublicID].LastActivityAt = time.Now().Add(-time.Hour)
	f.conversations.byPublic[withCarol.PublicID].LastActivityAt = time.Now().Add(-2 * time.Hour)

	_, err = f.service.SendMessage(ctx, SendMessageInput{
		ConversationID: withCarol.PublicID,
		SenderID:       "carol",
		Content:        "new activity",
	})
	require.NoError(t, err)

	convs, err := f.service.ListConversations(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, withCarol.PublicID, convs[0].PublicID)
	assert.Equal(t, withBob.PublicID, convs[1].PublicID)
}

func TestListConversations_RequiresUserID(t *testing.T) {
	f := newFixture()
	_, err := f.service.ListConversations(context.Background(), "  ")
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation))
}

func TestFullExchange(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conv, created, err := f.service.ResolveOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	require.True(t, created)

	_, err = f.service.SendMessage(ctx, SendMessageInput{ConversationID: conv.PublicID, SenderID: "alice", Content: "hi bob"})
	require.NoError(t, err)
	_, err = f.service.SendMessage(ctx, SendMessageInput{ConversationID: conv.PublicID, SenderID: "bob", Content: "hi alice"})
	require.NoError(t, err)
	_, err = f.service.SendMessage(ctx, SendMessageInput{ConversationID: conv.PublicID, SenderID: "bob", Content: "how was the run?"})
	require.NoError(t, err)

	assert.Equal(t, 2, conv.Unread["alice"])
	assert.Equal(t, 1, conv.Unread["bob"])
	assert.Equal(t, "how was the run?", conv.LastMessagePreview)

	require.NoError(t, f.service.MarkRead(ctx, conv.PublicID, "alice"))
	assert.Equal(t, 0, conv.Unread["alice"])
	assert.Equal(t, 1, conv.Unread["bob"])

	msgs, err := f.service.ListMessages(ctx, conv.PublicID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "hi bob", msgs[0].Content)
}
