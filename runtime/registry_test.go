package runtime

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-core/domain/event"
)

type recordingSink struct {
	events []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.events = append(s.events, e)
	return nil
}

func TestRegistry_Bind_One_Participant_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	sink := &recordingSink{}

	// Given nobody is connected
	req.False(registry.IsOnline("alice"))
	req.Empty(registry.OnlineIDs())

	// When a participant binds a connection
	registry.Bind("alice", sink)

	// Then the participant is online through exactly that connection
	req.True(registry.IsOnline("alice"))
	req.Len(registry.SinksFor("alice"), 1)
	req.Equal([]string{"alice"}, registry.OnlineIDs())
}

func TestRegistry_Bind_One_Participant_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	sink1 := &recordingSink{}
	sink2 := &recordingSink{}

	// When the same participant binds twice
	registry.Bind("alice", sink1)
	registry.Bind("alice", sink2)

	// Then both connections are live under one presence entry
	req.Len(registry.SinksFor("alice"), 2)
	req.Len(registry.OnlineIDs(), 1)
}

func TestRegistry_Unbind_Removes_Empty_Entries(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	sink1 := &recordingSink{}
	sink2 := &recordingSink{}
	registry.Bind("alice", sink1)
	registry.Bind("alice", sink2)

	// When the first connection unbinds
	id, last := registry.Unbind(sink1)
	req.Equal("alice", id)
	req.False(last)
	req.True(registry.IsOnline("alice"))

	// When the last connection unbinds
	id, last = registry.Unbind(sink2)
	req.Equal("alice", id)
	req.True(last)

	// Then the presence entry is gone entirely
	req.False(registry.IsOnline("alice"))
	req.Nil(registry.SinksFor("alice"))
	req.Empty(registry.OnlineIDs())
}

func TestRegistry_Unbind_Unknown_Connection_Is_A_Noop(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())

	id, last := registry.Unbind(&recordingSink{})

	req.Empty(id)
	req.False(last)
}

func TestRegistry_Publish_Reaches_Every_Connection_Of_Each_Recipient(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	alice1 := &recordingSink{}
	alice2 := &recordingSink{}
	bob := &recordingSink{}
	carol := &recordingSink{}
	registry.Bind("alice", alice1)
	registry.Bind("alice", alice2)
	registry.Bind("bob", bob)
	registry.Bind("carol", carol)

	// When an event addressed to alice and bob is published
	registry.Publish(context.Background(), event.MessageDeleted{ID: "m1", To: []string{"alice", "bob"}})

	// Then every connection of both recipients receives it, carol none
	req.Len(alice1.events, 1)
	req.Len(alice2.events, 1)
	req.Len(bob.events, 1)
	req.Empty(carol.events)
}

func TestRegistry_Publish_Without_Recipients_Reaches_Everyone(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(slog.Default())
	alice := &recordingSink{}
	bob := &recordingSink{}
	registry.Bind("alice", alice)
	registry.Bind("bob", bob)

	registry.Publish(context.Background(), event.UserStatus{})

	req.Len(alice.events, 1)
	req.Len(bob.events, 1)
}
