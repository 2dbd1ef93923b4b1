//go:generate go run go.uber.org/mock/mockgen -source=messages.go -destination=../mocks/mock_messages.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/moderation"
	"chat-core/repositories"
)

type IMessages interface {
	Send(ctx context.Context, senderID, receiverID, content string, typ domain.MessageType) (domain.Message, error)
	MarkDelivered(ctx context.Context, messageID uuid.UUID, callerID string) error
	MarkRead(ctx context.Context, messageID uuid.UUID, callerID string) error
	MarkAllRead(ctx context.Context, receiverID, senderID string) error
	Edit(ctx context.Context, messageID uuid.UUID, content, callerID string) error
	Delete(ctx context.Context, messageID uuid.UUID, callerID string) error
	React(ctx context.Context, messageID uuid.UUID, emoji, callerID string) error
	UnreadCount(participantID string) (int, error)
	ConversationSummaries(participantID string) ([]domain.ConversationSummary, error)
	ClearHistory(ctx context.Context, a, b string) error
	History(participantID string) ([]domain.Message, error)
	PurgeParticipant(participantID string) error
}

// Messages owns the message lifecycle. Every mutation commits to storage
// before anything is broadcast; a storage failure therefore never leaks a
// phantom event to connected clients.
type Messages struct {
	directory    IDirectory
	repository   repositories.IMessageRepository
	registry     contract.IRegistry
	masker       *moderation.Masker
	historyLimit int
	log          *slog.Logger
}

func NewMessages(directory IDirectory, repository repositories.IMessageRepository,
	registry contract.IRegistry, masker *moderation.Masker,
	historyLimit int, log *slog.Logger) *Messages {
	return &Messages{
		directory:    directory,
		repository:   repository,
		registry:     registry,
		masker:       masker,
		historyLimit: historyLimit,
		log:          log,
	}
}

// Send accepts a message for delivery. CreatedAt and DeliveredAt are both
// stamped at acceptance: delivered means handed to the transport layer,
// not read. Content is masked before it is stored, so the persisted record
// and the broadcast payload carry the same bytes.
func (s *Messages) Send(ctx context.Context, senderID, receiverID, content string,
	typ domain.MessageType) (domain.Message, error) {
	sender, err := s.directory.Resolve(senderID)
	if err != nil {
		return domain.Message{}, err
	}
	receiver, err := s.directory.Resolve(receiverID)
	if err != nil {
		return domain.Message{}, err
	}
	if receiver.Kind == domain.KindAccount && receiver.Account.HasBlocked(senderID) {
		return domain.Message{}, errors.ErrBlocked
	}

	if typ == "" {
		typ = domain.MessageText
	}
	if typ == domain.MessageText {
		content = s.masker.Mask(content)
	}

	now := time.Now().UTC()
	delivered := now
	message := domain.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Content:     content,
		Type:        typ,
		Anonymous:   sender.IsAnonymous(),
		CreatedAt:   now,
		DeliveredAt: &delivered,
	}
	if err := s.repository.Store(message); err != nil {
		return domain.Message{}, err
	}

	s.registry.Publish(ctx, event.ReceiveMessage{MessageView: event.ToMessageView(message)})
	return message, nil
}

func (s *Messages) MarkDelivered(ctx context.Context, messageID uuid.UUID, callerID string) error {
	return s.markStatus(ctx, messageID, callerID, func(m *domain.Message, at time.Time) {
		m.MarkDelivered(at)
	})
}

func (s *Messages) MarkRead(ctx context.Context, messageID uuid.UUID, callerID string) error {
	return s.markStatus(ctx, messageID, callerID, func(m *domain.Message, at time.Time) {
		m.MarkRead(at)
	})
}

// markStatus applies a timestamp transition. Repeating a transition is a
// no-op, not an error; only the receiver may perform one.
func (s *Messages) markStatus(ctx context.Context, messageID uuid.UUID, callerID string,
	apply func(*domain.Message, time.Time)) error {
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		if m.ReceiverID != callerID {
			return errors.ErrUnauthorized
		}
		apply(m, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}
	s.registry.Publish(ctx, event.MessageStatusUpdate{MessageView: event.ToMessageView(message)})
	return nil
}

// MarkAllRead bulk-reads every unread message from one sender, with one
// broadcast per updated message.
func (s *Messages) MarkAllRead(ctx context.Context, receiverID, senderID string) error {
	unread, err := s.repository.UnreadFor(receiverID)
	if err != nil {
		return err
	}
	for _, m := range unread {
		if m.SenderID != senderID {
			continue
		}
		if err := s.MarkRead(ctx, m.ID, receiverID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Messages) Edit(ctx context.Context, messageID uuid.UUID, content, callerID string) error {
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		if m.SenderID != callerID {
			return errors.ErrUnauthorized
		}
		if m.Type == domain.MessageText {
			content = s.masker.Mask(content)
		}
		m.Content = content
		m.Edited = true
		return nil
	})
	if err != nil {
		return err
	}
	s.registry.Publish(ctx, event.MessageEdited{MessageView: event.ToMessageView(message)})
	return nil
}

// Delete hard-removes a message; only the id travels in the deletion
// notice since the record is already gone.
func (s *Messages) Delete(ctx context.Context, messageID uuid.UUID, callerID string) error {
	current, err := s.repository.Get(messageID)
	if err != nil {
		return err
	}
	if current.SenderID != callerID {
		return errors.ErrUnauthorized
	}
	deleted, err := s.repository.Delete(messageID)
	if err != nil {
		return err
	}
	s.registry.Publish(ctx, event.MessageDeleted{
		ID: deleted.ID.String(),
		To: []string{deleted.SenderID, deleted.ReceiverID},
	})
	return nil
}

// React increments the per-emoji counter. Counters are additive; repeated
// reactions from the same caller stack up rather than toggling.
func (s *Messages) React(ctx context.Context, messageID uuid.UUID, emoji, callerID string) error {
	message, err := s.repository.Update(messageID, func(m *domain.Message) error {
		if m.SenderID != callerID && m.ReceiverID != callerID {
			return errors.ErrUnauthorized
		}
		m.React(emoji)
		return nil
	})
	if err != nil {
		return err
	}
	s.registry.Publish(ctx, event.ReactionUpdate{
		MessageID: message.ID.String(),
		Reactions: message.Reactions,
		To:        []string{message.SenderID, message.ReceiverID},
	})
	return nil
}

func (s *Messages) UnreadCount(participantID string) (int, error) {
	unread, err := s.repository.UnreadFor(participantID)
	return len(unread), err
}

// ConversationSummaries groups unread messages by sender, latest first.
// Sender names are resolved at query time, never cached, so a rename shows
// up immediately.
func (s *Messages) ConversationSummaries(participantID string) ([]domain.ConversationSummary, error) {
	unread, err := s.repository.UnreadFor(participantID)
	if err != nil {
		return nil, err
	}

	bySender := lo.GroupBy(unread, func(m domain.Message) string { return m.SenderID })
	summaries := make([]domain.ConversationSummary, 0, len(bySender))
	for senderID, messages := range bySender {
		summary := domain.ConversationSummary{
			SenderID:   senderID,
			SenderName: senderID,
			Unread:     len(messages),
		}
		for _, m := range messages {
			if m.CreatedAt.After(summary.LatestAt) {
				summary.LatestAt = m.CreatedAt
			}
		}
		if sender, err := s.directory.Resolve(senderID); err == nil {
			summary.SenderName = sender.DisplayName()
			summary.Anonymous = sender.IsAnonymous()
		}
		summaries = append(summaries, summary)
	}
	domain.SortSummaries(summaries)
	return summaries, nil
}

// ClearHistory deletes every message between exactly that pair, either
// direction.
func (s *Messages) ClearHistory(_ context.Context, a, b string) error {
	return s.repository.ClearConversation(a, b)
}

func (s *Messages) History(participantID string) ([]domain.Message, error) {
	return s.repository.History(participantID, s.historyLimit)
}

// PurgeParticipant removes an ephemeral participant's message trail when
// its session is destroyed.
func (s *Messages) PurgeParticipant(participantID string) error {
	err := s.repository.PurgeParticipant(participantID)
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	return err
}
