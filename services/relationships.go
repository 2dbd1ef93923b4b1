//go:generate go run go.uber.org/mock/mockgen -source=relationships.go -destination=../mocks/mock_relationships.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/repositories"
)

type IRelationships interface {
	SendFriendRequest(ctx context.Context, fromID, toID string) error
	AcceptFriendRequest(ctx context.Context, selfID, fromID string) error
	DeclineFriendRequest(ctx context.Context, selfID, fromID string) error
	Unfriend(ctx context.Context, selfID, otherID string) error
	Block(ctx context.Context, selfID, targetID string) error
	Unblock(ctx context.Context, selfID, targetID string) error
	Report(ctx context.Context, reporterID, targetID, reason string) error
}

// Relationships owns the friend-request, friend and block lifecycles.
// It operates on accounts only: an ephemeral id never resolves in the
// account store, so relationship calls against one fail NotFound.
type Relationships struct {
	accounts repositories.IAccountRepository
	reports  repositories.IReportRepository
	registry contract.IRegistry
	log      *slog.Logger
}

func NewRelationships(accounts repositories.IAccountRepository,
	reports repositories.IReportRepository,
	registry contract.IRegistry, log *slog.Logger) *Relationships {
	return &Relationships{
		accounts: accounts,
		reports:  reports,
		registry: registry,
		log:      log,
	}
}

func (s *Relationships) SendFriendRequest(ctx context.Context, fromID, toID string) error {
	from, err := s.accounts.Get(fromID)
	if err != nil {
		return err
	}

	to, err := s.accounts.Update(toID, func(to *domain.Account) error {
		switch {
		case to.HasBlocked(fromID):
			return errors.ErrBlocked
		case to.PrivacyNoRequests:
			return errors.ErrRequestsDisabled
		case to.IsFriend(fromID), to.HasPendingFrom(fromID), from.HasPendingFrom(toID):
			return errors.ErrAlreadyRelated
		}
		to.FriendRequests = append(to.FriendRequests, fromID)
		to.Activity.Append("request_received", fromID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.accounts.Update(fromID, func(a *domain.Account) error {
		a.Activity.Append("request_sent", toID, time.Now().UTC())
		return nil
	}); err != nil {
		return err
	}

	s.registry.Publish(ctx, event.FriendRequestReceived{
		FromID:   fromID,
		FromName: from.DisplayName,
		To:       toID,
	})
	s.registry.Publish(ctx, event.FriendRequestsUpdate{IDs: to.FriendRequests, To: toID})
	return nil
}

// AcceptFriendRequest removes the pending entry and adds the symmetric
// friendship. The two sides live in two independent records: if the second
// update fails after the first commits, the edge is left asymmetric and
// logged, not silently repaired.
func (s *Relationships) AcceptFriendRequest(ctx context.Context, selfID, fromID string) error {
	self, err := s.accounts.Update(selfID, func(a *domain.Account) error {
		if !a.HasPendingFrom(fromID) {
			return errors.ErrNotFound
		}
		a.FriendRequests = domain.Remove(a.FriendRequests, fromID)
		a.Friends = append(a.Friends, fromID)
		a.Activity.Append("friend_added", fromID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}

	from, err := s.accounts.Update(fromID, func(a *domain.Account) error {
		if !a.IsFriend(selfID) {
			a.Friends = append(a.Friends, selfID)
		}
		a.Activity.Append("friend_added", selfID, time.Now().UTC())
		return nil
	})
	if err != nil {
		// Known reconciliation gap: selfID already lists fromID as friend.
		s.log.Warn("Asymmetric friendship after partial accept",
			"self", selfID, "from", fromID, "error", err)
		return err
	}

	s.registry.Publish(ctx, event.FriendsUpdate{IDs: self.Friends, To: selfID})
	s.registry.Publish(ctx, event.FriendRequestsUpdate{IDs: self.FriendRequests, To: selfID})
	s.registry.Publish(ctx, event.FriendsUpdate{IDs: from.Friends, To: fromID})
	return nil
}

func (s *Relationships) DeclineFriendRequest(ctx context.Context, selfID, fromID string) error {
	self, err := s.accounts.Update(selfID, func(a *domain.Account) error {
		if !a.HasPendingFrom(fromID) {
			return errors.ErrNotFound
		}
		a.FriendRequests = domain.Remove(a.FriendRequests, fromID)
		a.Activity.Append("request_declined", fromID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}
	s.registry.Publish(ctx, event.FriendRequestsUpdate{IDs: self.FriendRequests, To: selfID})
	return nil
}

func (s *Relationships) Unfriend(ctx context.Context, selfID, otherID string) error {
	self, err := s.accounts.Update(selfID, func(a *domain.Account) error {
		a.Friends = domain.Remove(a.Friends, otherID)
		a.Activity.Append("unfriended", otherID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}
	other, err := s.accounts.Update(otherID, func(a *domain.Account) error {
		a.Friends = domain.Remove(a.Friends, selfID)
		a.Activity.Append("unfriended", selfID, time.Now().UTC())
		return nil
	})
	if err != nil {
		s.log.Warn("Asymmetric unfriend", "self", selfID, "other", otherID, "error", err)
		return err
	}

	s.registry.Publish(ctx, event.FriendsUpdate{IDs: self.Friends, To: selfID})
	s.registry.Publish(ctx, event.FriendsUpdate{IDs: other.Friends, To: otherID})
	s.registry.Publish(ctx, event.FriendRemoved{OtherID: selfID, To: otherID})
	return nil
}

// Block adds the target to the blocked set. An existing friendship is
// removed from both sides in the same pass, and any pending request
// between the pair is dropped so it can never be accepted later.
func (s *Relationships) Block(ctx context.Context, selfID, targetID string) error {
	self, err := s.accounts.Update(selfID, func(a *domain.Account) error {
		if a.HasBlocked(targetID) {
			return errors.ErrAlreadyBlocked
		}
		a.Blocked = append(a.Blocked, targetID)
		a.Friends = domain.Remove(a.Friends, targetID)
		a.FriendRequests = domain.Remove(a.FriendRequests, targetID)
		a.Activity.Append("blocked", targetID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}

	target, err := s.accounts.Update(targetID, func(a *domain.Account) error {
		a.Friends = domain.Remove(a.Friends, selfID)
		a.FriendRequests = domain.Remove(a.FriendRequests, selfID)
		return nil
	})
	if err != nil {
		s.log.Warn("Asymmetric friendship removal on block",
			"self", selfID, "target", targetID, "error", err)
		return err
	}

	s.registry.Publish(ctx, event.BlockedUsersUpdate{IDs: self.Blocked, To: selfID})
	s.registry.Publish(ctx, event.FriendsUpdate{IDs: self.Friends, To: selfID})
	s.registry.Publish(ctx, event.FriendsUpdate{IDs: target.Friends, To: targetID})
	return nil
}

func (s *Relationships) Unblock(ctx context.Context, selfID, targetID string) error {
	self, err := s.accounts.Update(selfID, func(a *domain.Account) error {
		if !a.HasBlocked(targetID) {
			return errors.ErrNotBlocked
		}
		a.Blocked = domain.Remove(a.Blocked, targetID)
		a.Activity.Append("unblocked", targetID, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}
	s.registry.Publish(ctx, event.BlockedUsersUpdate{IDs: self.Blocked, To: selfID})
	return nil
}

func (s *Relationships) Report(_ context.Context, reporterID, targetID, reason string) error {
	return s.reports.Store(domain.Report{
		ID:         uuid.New(),
		ReporterID: reporterID,
		TargetID:   targetID,
		Reason:     reason,
		At:         time.Now().UTC(),
	})
}
