package dispatch

// Inbound event payloads. Shape is checked with validator tags before any
// handler runs; a payload that fails validation never mutates state. The
// participant_id rule keeps key separator characters out of every id.

type JoinPayload struct {
	ParticipantID string `json:"participantId" validate:"required,participant_id"`
	Name          string `json:"name"`
}

type SendMessagePayload struct {
	Sender   string `json:"sender" validate:"required,participant_id"`
	Receiver string `json:"receiver" validate:"required,participant_id"`
	Content  string `json:"content"`
	Audio    []byte `json:"audio,omitempty"`
	Type     string `json:"type" validate:"omitempty,oneof=text audio"`
}

// UpdateMessageStatusPayload addresses either one message by id or, with
// SenderID set instead, every unread message from that sender.
type UpdateMessageStatusPayload struct {
	MessageID string `json:"messageId" validate:"omitempty,uuid"`
	SenderID  string `json:"senderId" validate:"omitempty,participant_id"`
	UserID    string `json:"userId" validate:"required,participant_id"`
	Status    string `json:"status" validate:"required,oneof=delivered read"`
}

type EditMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Content   string `json:"content" validate:"required"`
	UserID    string `json:"userId" validate:"required,participant_id"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	UserID    string `json:"userId" validate:"required,participant_id"`
}

type AddReactionPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	Emoji     string `json:"emoji" validate:"required"`
	UserID    string `json:"userId" validate:"required,participant_id"`
}

type TypingPayload struct {
	Sender   string `json:"sender" validate:"required,participant_id"`
	Receiver string `json:"receiver" validate:"required,participant_id"`
	Username string `json:"username"`
}

type ClearChatHistoryPayload struct {
	UserID   string `json:"userId" validate:"required,participant_id"`
	TargetID string `json:"targetId" validate:"required,participant_id"`
}

type BlockPayload struct {
	UserID   string `json:"userId" validate:"required,participant_id"`
	TargetID string `json:"targetId" validate:"required,participant_id"`
}

type FriendPayload struct {
	UserID   string `json:"userId" validate:"required,participant_id"`
	FriendID string `json:"friendId" validate:"required,participant_id"`
}

type ReportPayload struct {
	UserID   string `json:"userId" validate:"required,participant_id"`
	TargetID string `json:"targetId" validate:"required,participant_id"`
	Reason   string `json:"reason"`
}

type LogoutPayload struct {
	UserID string `json:"userId" validate:"required,participant_id"`
}
