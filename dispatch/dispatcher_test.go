package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-core/blob"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/moderation"
	"chat-core/repositories"
	"chat-core/runtime"
	"chat-core/services"
)

type recordingSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) named(name string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	dispatcher *Dispatcher
	accounts   *repositories.AccountRepository
	messages   *services.Messages
	registry   *runtime.Registry
	tracker    *runtime.ActivityTracker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	registry := runtime.NewRegistry(log)
	tracker := runtime.NewActivityTracker()
	accounts := repositories.NewAccountRepository(db)
	sessions := repositories.NewSessionRepository(db)
	messageRepo := repositories.NewMessageRepository(db, log)
	directory := services.NewDirectory(accounts, sessions, registry, "EU")
	masker, err := moderation.NewMasker([]string{"idiot"}, '*')
	require.NoError(t, err)
	messages := services.NewMessages(directory, messageRepo, registry, masker, 50, log)
	relationships := services.NewRelationships(accounts, repositories.NewReportRepository(db), registry, log)
	blobs, err := blob.NewStore(t.TempDir(), "/blobs")
	require.NoError(t, err)

	return fixture{
		dispatcher: NewDispatcher(directory, messages, relationships, registry, tracker, blobs, log),
		accounts:   accounts,
		messages:   messages,
		registry:   registry,
		tracker:    tracker,
	}
}

func frame(t *testing.T, name string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(Frame{Event: name, Data: data})
	require.NoError(t, err)
	return raw
}

func TestDispatcher_Join_Pushes_Snapshot_And_History_To_The_New_Connection_Only(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	bystander := &recordingSink{}
	f.registry.Bind("anon-old", bystander)

	joining := &recordingSink{}
	f.dispatcher.HandleFrame(ctx, joining, frame(t, "join",
		JoinPayload{ParticipantID: "anon-1", Name: "Moth"}))

	// The joiner gets the roster and history, everyone gets the status
	req.Len(joining.named("userListUpdate"), 1)
	req.Len(joining.named("loadPreviousMessages"), 1)
	req.Empty(bystander.named("userListUpdate"))

	status := bystander.named("userStatus")
	req.Len(status, 1)
	req.True(status[0].(event.UserStatus).Online)
	req.Equal("anon-1", status[0].(event.UserStatus).ID)
	req.True(f.registry.IsOnline("anon-1"))
}

func TestDispatcher_Invalid_Payload_Fails_The_Action_Without_Mutating(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	sink := &recordingSink{}

	// Missing receiver fails validation before the service runs
	f.dispatcher.HandleFrame(ctx, sink, frame(t, "sendMessage",
		map[string]string{"sender": "anon-1", "content": "hello"}))

	responses := sink.named("actionResponse")
	req.Len(responses, 1)
	req.False(responses[0].(event.ActionResponse).Success)
	req.NotEmpty(responses[0].(event.ActionResponse).Msg)
	req.Empty(sink.named("receiveMessage"))
}

func TestDispatcher_Malformed_And_Unknown_Frames_Produce_An_Error_Event(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	sink := &recordingSink{}

	f.dispatcher.HandleFrame(ctx, sink, []byte("{not json"))
	f.dispatcher.HandleFrame(ctx, sink, frame(t, "teleport", map[string]string{}))

	req.Len(sink.named("error"), 2)
	req.Empty(sink.named("actionResponse"))
}

func TestDispatcher_SendMessage_Frame_Delivers_And_Acknowledges(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	sender, receiver := &recordingSink{}, &recordingSink{}
	f.dispatcher.HandleFrame(ctx, sender, frame(t, "join", JoinPayload{ParticipantID: "anon-1", Name: "Ana"}))
	f.dispatcher.HandleFrame(ctx, receiver, frame(t, "join", JoinPayload{ParticipantID: "anon-2", Name: "Bea"}))

	f.dispatcher.HandleFrame(ctx, sender, frame(t, "sendMessage", SendMessagePayload{
		Sender: "anon-1", Receiver: "anon-2", Content: "hello", Type: "text",
	}))

	req.Len(receiver.named("receiveMessage"), 1)
	req.Equal("hello", receiver.named("receiveMessage")[0].(event.ReceiveMessage).Content)

	responses := sender.named("actionResponse")
	req.Len(responses, 1)
	req.Equal("sendMessage", responses[0].(event.ActionResponse).Type)
	req.True(responses[0].(event.ActionResponse).Success)
}

func TestDispatcher_Logout_Tears_Down_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	req.NoError(f.accounts.Put(domain.Account{ID: "u1", DisplayName: "Uma"}))

	self, watcher := &recordingSink{}, &recordingSink{}
	f.dispatcher.HandleFrame(ctx, self, frame(t, "join", JoinPayload{ParticipantID: "u1"}))
	f.registry.Bind("anon-w", watcher)

	f.dispatcher.HandleFrame(ctx, self, frame(t, "logout", LogoutPayload{UserID: "u1"}))
	// A second teardown for the same participant is a no-op
	f.dispatcher.Teardown(ctx, "u1")

	offline := watcher.named("userStatus")
	req.Len(offline, 1)
	req.False(offline[0].(event.UserStatus).Online)
	req.False(f.registry.IsOnline("u1"))

	account, err := f.accounts.Get("u1")
	req.NoError(err)
	req.False(account.Online)
}

func TestDispatcher_Disconnect_Waits_For_The_Last_Connection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	req.NoError(f.accounts.Put(domain.Account{ID: "u1"}))

	phone, laptop := &recordingSink{}, &recordingSink{}
	f.dispatcher.HandleFrame(ctx, phone, frame(t, "join", JoinPayload{ParticipantID: "u1"}))
	f.dispatcher.HandleFrame(ctx, laptop, frame(t, "join", JoinPayload{ParticipantID: "u1"}))
	watcher := &recordingSink{}
	f.registry.Bind("anon-w", watcher)

	f.dispatcher.Disconnect(ctx, phone)
	req.True(f.registry.IsOnline("u1"))
	req.Empty(watcher.named("userStatus"))

	f.dispatcher.Disconnect(ctx, laptop)
	req.False(f.registry.IsOnline("u1"))
	req.Len(watcher.named("userStatus"), 1)
}

func TestDispatcher_Ephemeral_Teardown_Purges_Conversations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	ghost, keeper := &recordingSink{}, &recordingSink{}
	f.dispatcher.HandleFrame(ctx, ghost, frame(t, "join", JoinPayload{ParticipantID: "anon-1", Name: "Ghost"}))
	f.dispatcher.HandleFrame(ctx, keeper, frame(t, "join", JoinPayload{ParticipantID: "anon-2", Name: "Keeper"}))
	f.dispatcher.HandleFrame(ctx, ghost, frame(t, "sendMessage", SendMessagePayload{
		Sender: "anon-1", Receiver: "anon-2", Content: "fleeting", Type: "text",
	}))

	f.dispatcher.Disconnect(ctx, ghost)

	history, err := f.messages.History("anon-2")
	req.NoError(err)
	req.Empty(history)
}

type closableSink struct {
	recordingSink
	closeCalls int
}

func (s *closableSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func TestDispatcher_Teardown_Closes_The_Unbound_Connections(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	sink := &closableSink{}
	f.dispatcher.HandleFrame(ctx, sink, frame(t, "join",
		JoinPayload{ParticipantID: "anon-1", Name: "Moth"}))

	// Reaper-style expiry: no transport close precedes the teardown
	f.dispatcher.Teardown(ctx, "anon-1")

	sink.mu.Lock()
	closeCalls := sink.closeCalls
	sink.mu.Unlock()
	req.Equal(1, closeCalls)
	req.False(f.registry.IsOnline("anon-1"))
}

func TestDispatcher_Ids_Carrying_Key_Separators_Are_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	req.NoError(f.accounts.Put(domain.Account{ID: "bob"}))
	sink := &recordingSink{}

	// A receiver id extending "bob" past a colon must never be persisted,
	// or it would surface in bob's unread prefix scans
	f.dispatcher.HandleFrame(ctx, sink, frame(t, "sendMessage", SendMessagePayload{
		Sender: "anon-1", Receiver: "bob:evil", Content: "hi", Type: "text",
	}))

	responses := sink.named("actionResponse")
	req.Len(responses, 1)
	req.False(responses[0].(event.ActionResponse).Success)

	unread, err := f.messages.UnreadCount("bob")
	req.NoError(err)
	req.Zero(unread)

	// A pipe would collide pair keys, so joins reject it too
	f.dispatcher.HandleFrame(ctx, sink, frame(t, "join",
		JoinPayload{ParticipantID: "anon-a|b"}))
	req.Len(sink.named("error"), 1)
	req.False(f.registry.IsOnline("anon-a|b"))
}

func TestDispatcher_UpdateMessageStatus_Requires_A_Target(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	sink := &recordingSink{}

	// Neither messageId nor senderId identifies what to update
	f.dispatcher.HandleFrame(ctx, sink, frame(t, "updateMessageStatus",
		UpdateMessageStatusPayload{UserID: "anon-1", Status: "read"}))

	responses := sink.named("actionResponse")
	req.Len(responses, 1)
	req.False(responses[0].(event.ActionResponse).Success)
}

func TestDispatcher_Typing_Is_Relayed_Without_Persisting(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	sender, receiver := &recordingSink{}, &recordingSink{}
	f.dispatcher.HandleFrame(ctx, sender, frame(t, "join", JoinPayload{ParticipantID: "anon-1", Name: "Ana"}))
	f.dispatcher.HandleFrame(ctx, receiver, frame(t, "join", JoinPayload{ParticipantID: "anon-2", Name: "Bea"}))

	f.dispatcher.HandleFrame(ctx, sender, frame(t, "typing",
		TypingPayload{Sender: "anon-1", Receiver: "anon-2", Username: "Ana"}))
	f.dispatcher.HandleFrame(ctx, sender, frame(t, "stopTyping",
		TypingPayload{Sender: "anon-1", Receiver: "anon-2"}))

	req.Len(receiver.named("typing"), 1)
	req.Equal("Ana", receiver.named("typing")[0].(event.Typing).Username)
	req.Len(receiver.named("stopTyping"), 1)

	history, err := f.messages.History("anon-2")
	req.NoError(err)
	req.Empty(history)
}
