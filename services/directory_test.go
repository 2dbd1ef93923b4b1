package services

import (
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
	"chat-core/runtime"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newDirectory(t *testing.T, registry *runtime.Registry, homeRegion string) (*Directory, *repositories.AccountRepository) {
	t.Helper()
	db := newTestDB(t)
	accounts := repositories.NewAccountRepository(db)
	sessions := repositories.NewSessionRepository(db)
	return NewDirectory(accounts, sessions, registry, homeRegion), accounts
}

func TestDirectory_Resolve_Picks_The_Namespace_From_The_Id_Shape(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry(slog.Default())
	directory, accounts := newDirectory(t, registry, "")
	req.NoError(accounts.Put(domain.Account{ID: "u1", DisplayName: "Uma"}))
	_, err := directory.EnsureEphemeral("anon-9", "Ghost")
	req.NoError(err)

	// An account id resolves to the durable namespace
	participant, err := directory.Resolve("u1")
	req.NoError(err)
	req.Equal(domain.KindAccount, participant.Kind)
	req.False(participant.IsAnonymous())

	// An anon- id resolves to the ephemeral namespace
	participant, err = directory.Resolve("anon-9")
	req.NoError(err)
	req.Equal(domain.KindEphemeral, participant.Kind)
	req.True(participant.IsAnonymous())

	// Neither namespace knows this id
	_, err = directory.Resolve("nobody")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestDirectory_EnsureEphemeral_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry(slog.Default())
	directory, _ := newDirectory(t, registry, "")

	// When the same id joins twice
	first, err := directory.EnsureEphemeral("anon-1", "Ghost")
	req.NoError(err)
	second, err := directory.EnsureEphemeral("anon-1", "Another Name")
	req.NoError(err)

	// Then the session is created once and keeps its original name
	req.Equal(first.ID, second.ID)
	req.Equal("Ghost", second.DisplayName)
	req.True(second.Online)
}

func TestDirectory_DestroyEphemeral_Twice_Is_A_Noop(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry(slog.Default())
	directory, _ := newDirectory(t, registry, "")
	_, err := directory.EnsureEphemeral("anon-1", "")
	req.NoError(err)

	req.NoError(directory.DestroyEphemeral("anon-1"))
	req.NoError(directory.DestroyEphemeral("anon-1"))

	_, err = directory.Resolve("anon-1")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestDirectory_Snapshot_Orders_Home_Region_First_Then_Alphabetical(t *testing.T) {
	req := require.New(t)
	registry := runtime.NewRegistry(slog.Default())
	directory, accounts := newDirectory(t, registry, "EU")

	req.NoError(accounts.Put(domain.Account{ID: "u1", DisplayName: "Zoe", Region: "EU"}))
	req.NoError(accounts.Put(domain.Account{ID: "u2", DisplayName: "Ana", Region: "US"}))
	req.NoError(accounts.Put(domain.Account{ID: "u3", DisplayName: "Bea", Region: "EU"}))
	req.NoError(accounts.Put(domain.Account{ID: "u4", DisplayName: "Cid", Region: "US"}))
	_, err := directory.EnsureEphemeral("anon-1", "Moth")
	req.NoError(err)

	for _, id := range []string{"u1", "u2", "u3", "u4", "anon-1"} {
		registry.Bind(id, &recordingSink{})
	}

	// When u4 asks for the snapshot
	snapshot := directory.Snapshot("u4")

	// Then the requester is excluded, the home region group comes first
	// and each group is alphabetical by display name
	names := make([]string, 0, len(snapshot))
	for _, s := range snapshot {
		names = append(names, s.DisplayName)
	}
	req.Equal([]string{"Bea", "Zoe", "Ana", "Moth"}, names)
}
