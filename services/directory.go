//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks
package services

import (
	stderrors "errors"
	"sort"
	"time"

	"github.com/samber/lo"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/repositories"
)

// IDirectory resolves an external id to a participant, unifying the durable
// account namespace and the ephemeral session namespace. The namespace is
// determined from the id shape alone.
type IDirectory interface {
	Resolve(id string) (domain.Participant, error)
	EnsureEphemeral(id, nameHint string) (domain.Session, error)
	DestroyEphemeral(id string) error
	SetAccountOnline(id string, online bool) error
	ResetPresence() error
	Snapshot(excludeID string) []domain.ParticipantSummary
}

type Directory struct {
	accounts   repositories.IAccountRepository
	sessions   repositories.ISessionRepository
	registry   contract.IRegistry
	homeRegion string
}

func NewDirectory(accounts repositories.IAccountRepository,
	sessions repositories.ISessionRepository,
	registry contract.IRegistry, homeRegion string) *Directory {
	return &Directory{
		accounts:   accounts,
		sessions:   sessions,
		registry:   registry,
		homeRegion: homeRegion,
	}
}

func (d *Directory) Resolve(id string) (domain.Participant, error) {
	if domain.IsEphemeralID(id) {
		session, err := d.sessions.Get(id)
		if err != nil {
			return domain.Participant{}, err
		}
		return domain.Participant{Kind: domain.KindEphemeral, Session: &session}, nil
	}
	account, err := d.accounts.Get(id)
	if err != nil {
		return domain.Participant{}, err
	}
	return domain.Participant{Kind: domain.KindAccount, Account: &account}, nil
}

// EnsureEphemeral creates the session on first connect and is a plain
// lookup afterwards. Either way the session comes back marked online.
func (d *Directory) EnsureEphemeral(id, nameHint string) (domain.Session, error) {
	session, err := d.sessions.Get(id)
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return domain.Session{}, err
	}
	if stderrors.Is(err, errors.ErrNotFound) {
		if nameHint == "" {
			nameHint = id
		}
		session = domain.Session{
			ID:          id,
			DisplayName: nameHint,
			CreatedAt:   time.Now().UTC(),
		}
	}
	session.Online = true
	session.LastActive = time.Now().UTC()
	if err := d.sessions.Put(session); err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

func (d *Directory) DestroyEphemeral(id string) error {
	return d.sessions.Delete(id)
}

func (d *Directory) SetAccountOnline(id string, online bool) error {
	return d.accounts.SetOnline(id, online, time.Now().UTC())
}

func (d *Directory) ResetPresence() error {
	return d.accounts.ResetPresence()
}

// Snapshot lists everyone currently online except the requester, home
// region first, each group alphabetical by display name.
func (d *Directory) Snapshot(excludeID string) []domain.ParticipantSummary {
	var summaries []domain.ParticipantSummary
	for _, id := range d.registry.OnlineIDs() {
		if id == excludeID {
			continue
		}
		participant, err := d.Resolve(id)
		if err != nil {
			// Bound connection whose record is already torn down; skip.
			continue
		}
		summary := domain.ParticipantSummary{
			ID:          participant.ID(),
			DisplayName: participant.DisplayName(),
			Anonymous:   participant.IsAnonymous(),
			Online:      true,
		}
		if participant.Kind == domain.KindAccount {
			summary.Region = participant.Account.Region
		}
		summaries = append(summaries, summary)
	}

	home, away := lo.FilterReject(summaries, func(s domain.ParticipantSummary, _ int) bool {
		return d.homeRegion != "" && s.Region == d.homeRegion
	})
	byName := func(group []domain.ParticipantSummary) {
		sort.Slice(group, func(i, j int) bool {
			return group[i].DisplayName < group[j].DisplayName
		})
	}
	byName(home)
	byName(away)
	return append(home, away...)
}
