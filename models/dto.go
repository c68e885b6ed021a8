package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Bu dosya sunucunun JSON şekillerini (DTO) ve onları domain tipine
// çeviren, şekil uyuşmazlığında hata dönen (fail-closed) parse fonksiyonlarını içerir.
// Ağ sınırından gelen hiçbir veri doğrulanmadan cache'e girmez.

// Timestamp, sunucunun tarih formatlarını okur.
// Spring LocalDateTime zone'suz gelir ("2025-01-02T15:04:05.123"); zone'suz değerler UTC kabul edilir.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// UserDTO, sunucunun UserSimpleDTO'su.
type UserDTO struct {
	ID        *int64 `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
	Bio       string `json:"bio"`
}

// ToUser, DTO'yu doğrular ve User'a çevirir.
func (d *UserDTO) ToUser() (*User, error) {
	if d.ID == nil {
		return nil, fmt.Errorf("user id is missing")
	}
	return &User{ID: *d.ID, Username: d.Username, AvatarURL: d.AvatarURL, Bio: d.Bio}, nil
}

// AttachmentDTO, mesaj eki.
type AttachmentDTO struct {
	Attachment
	UploadedAt Timestamp `json:"uploadedAt"`
}

// MessageDTO, hem history sayfasında hem push topic'lerinde gelen mesaj şekli.
type MessageDTO struct {
	ID                  *int64               `json:"id"`
	Sender              *UserDTO             `json:"sender"`
	Content             string               `json:"content"`
	MessageType         string               `json:"messageType"`
	CreatedAt           Timestamp            `json:"createdAt"`
	UpdatedAt           Timestamp            `json:"updatedAt"`
	Edited              bool                 `json:"edited"`
	ChannelID           *int64               `json:"channelId"`
	DirectMessageChatID *int64               `json:"directMessageChatId"`
	Attachments         []AttachmentDTO      `json:"attachments"`
	ReactionCounts      map[string]int       `json:"reactionCounts"`
	ReactionsByEmoji    map[string][]UserDTO `json:"reactionsByEmoji"`
	ParentMessageID     *int64               `json:"parentMessageId"`
	RepliedTo           *ParentInfo          `json:"repliedTo"`
}

// Reactors, reactionsByEmoji alanını domain tipine çevirir. ID'siz kullanıcılar atlanır.
func (d *MessageDTO) Reactors() map[string][]Reactor {
	out := make(map[string][]Reactor, len(d.ReactionsByEmoji))
	for emoji, users := range d.ReactionsByEmoji {
		for _, u := range users {
			if u.ID == nil {
				continue
			}
			out[emoji] = append(out[emoji], Reactor{UserID: *u.ID, DisplayName: u.Username})
		}
	}
	return out
}

// ToRecord, DTO'yu doğrulayıp MessageRecord'a çevirir.
//
// Zorunlu alanlar: id, sender.id, createdAt, scope (channelId XOR directMessageChatId).
// Reaksiyonlar reactionsByEmoji'den kurulur; reactor kümesi count'un kaynağıdır.
func (d *MessageDTO) ToRecord() (*MessageRecord, error) {
	if d.ID == nil {
		return nil, fmt.Errorf("message id is missing")
	}
	if d.Sender == nil || d.Sender.ID == nil {
		return nil, fmt.Errorf("message %d: sender is missing", *d.ID)
	}
	if d.CreatedAt.IsZero() {
		return nil, fmt.Errorf("message %d: createdAt is missing", *d.ID)
	}
	scope, err := ScopeFromIDs(d.ChannelID, d.DirectMessageChatID)
	if err != nil {
		return nil, fmt.Errorf("message %d: %w", *d.ID, err)
	}

	rec := &MessageRecord{
		ID:              *d.ID,
		Scope:           scope,
		SenderID:        *d.Sender.ID,
		SenderDisplay:   d.Sender.Username,
		SenderAvatarRef: d.Sender.AvatarURL,
		Content:         d.Content,
		MessageType:     d.MessageType,
		CreatedAt:       d.CreatedAt.Time,
		UpdatedAt:       d.UpdatedAt.Time,
		Edited:          d.Edited,
		ParentMessageID: d.ParentMessageID,
		ReplyTo:         d.RepliedTo,
		Reactions:       NewReactionState(d.Reactors()),
	}
	for _, a := range d.Attachments {
		att := a.Attachment
		att.UploadedAt = a.UploadedAt.Time
		rec.Attachments = append(rec.Attachments, att)
	}
	return rec, nil
}

// MessagePageDTO, Spring Data Page<MessageDTO> şekli.
type MessagePageDTO struct {
	Content []json.RawMessage `json:"content"`
	Last    *bool             `json:"last"`
	Number  int               `json:"number"`
}

// MessageDeletedDTO, silme bildirimi.
type MessageDeletedDTO struct {
	MessageID           *int64 `json:"messageId"`
	DeletedBy           string `json:"deletedBy"`
	ChannelID           *int64 `json:"channelId"`
	DirectMessageChatID *int64 `json:"directMessageChatId"`
}

// TypingIndicatorDTO, typing sinyali. isTyping alanı yoksa true kabul edilir.
type TypingIndicatorDTO struct {
	UserID              *int64 `json:"userId"`
	Username            string `json:"username"`
	ChannelID           *int64 `json:"channelId"`
	DirectMessageChatID *int64 `json:"directMessageChatId"`
	IsTyping            *bool  `json:"isTyping"`
}

// ServerErrorDTO, /user/queue/errors üzerinden gelen hata.
type ServerErrorDTO struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// Text, gösterilecek mesaj: details tercih edilir.
func (d *ServerErrorDTO) Text() string {
	if d.Details != "" {
		return d.Details
	}
	return d.Error
}

// ─── Giden payload'lar ───

// ChatMessagePayload, /app/chat.sendMessage ve multipart "sendMessageDTO" part'ı.
type ChatMessagePayload struct {
	Content             string `json:"content"`
	ParentMessageID     *int64 `json:"parentMessageId"`
	ChannelID           *int64 `json:"channelId,omitempty"`
	DirectMessageChatID *int64 `json:"directMessageChatId,omitempty"`
}

// NewChatMessagePayload, SendMessageRequest'ten payload üretir.
func NewChatMessagePayload(req SendMessageRequest) ChatMessagePayload {
	channelID, dmID := req.Scope.IDs()
	return ChatMessagePayload{
		Content:             req.Content,
		ParentMessageID:     req.ParentMessageID,
		ChannelID:           channelID,
		DirectMessageChatID: dmID,
	}
}

// ReactionPayload, /app/chat.addReaction ve /app/chat.removeReaction gövdesi.
type ReactionPayload struct {
	MessageID           int64               `json:"messageId"`
	ReactionRequest     ReactionRequestBody `json:"reactionRequestDTO"`
	ChannelID           *int64              `json:"channelId,omitempty"`
	DirectMessageChatID *int64              `json:"directMessageChatId,omitempty"`
}

// ReactionRequestBody, sunucunun ReactionRequestDTO'su.
type ReactionRequestBody struct {
	EmojiUnicode string `json:"emojiUnicode"`
}

// NewReactionPayload, scope bilgisiyle birlikte reaksiyon payload'ı üretir.
func NewReactionPayload(scope ChatScope, messageID int64, emoji string) ReactionPayload {
	channelID, dmID := scope.IDs()
	return ReactionPayload{
		MessageID:           messageID,
		ReactionRequest:     ReactionRequestBody{EmojiUnicode: emoji},
		ChannelID:           channelID,
		DirectMessageChatID: dmID,
	}
}

// TypingPayload, /app/chat.typing gövdesi.
type TypingPayload struct {
	ChatID int64 `json:"chatId"`
	Direct bool  `json:"direct"`
}

// NewTypingPayload, scope'tan typing payload'ı üretir.
func NewTypingPayload(scope ChatScope) TypingPayload {
	return TypingPayload{ChatID: scope.ID, Direct: scope.Kind == ScopeDirectMessage}
}

// LoginRequest, /api/auth/login gövdesi.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate, boş alanları reddeder.
func (r *LoginRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if r.Username == "" {
		return fmt.Errorf("username is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
