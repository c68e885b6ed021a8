package services

import (
	"encoding/json"
	"fmt"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// Push frame'lerinin typed karşılıkları. Her topic tek bir şekle çözülür;
// şekil uymazsa DecodeInbound ErrMalformedPayload döner ve frame düşürülür.

// MessageCreated, yeni mesaj.
type MessageCreated struct {
	Record *models.MessageRecord
}

// MessageUpdated, düzenlenmiş veya reaksiyonu değişmiş mesaj.
type MessageUpdated struct {
	Record *models.MessageRecord
}

// MessageDeleted, silinen mesaj.
type MessageDeleted struct {
	Scope     models.ChatScope
	MessageID int64
	DeletedBy string
}

// ReactionSnapshot, sunucunun bir mesaj için onayladığı reaksiyon durumu.
type ReactionSnapshot struct {
	Scope     models.ChatScope
	MessageID int64
	ByEmoji   map[string][]models.Reactor
	Counts    map[string]int
}

// TypingSignal, bir kullanıcının yazma durumu.
type TypingSignal struct {
	Scope       models.ChatScope
	UserID      int64
	DisplayName string
	IsTyping    bool
}

// UserUpdated, profil güncellemesi.
type UserUpdated struct {
	User models.User
}

// ServerError, kullanıcıya özel hata kuyruğundan gelen mesaj.
type ServerError struct {
	Text string
}

// DecodeInbound, ham frame'i topic'ine göre typed event'e çevirir.
//
// Scope'a bağlı topic'lerde payload'ın scope'u subscription'ın scope'uyla
// aynı olmalı; farklıysa frame yanlış yere gelmiştir ve reddedilir.
func DecodeInbound(in Inbound) (any, error) {
	switch in.Topic {
	case TopicMessages, TopicMessageUpdates:
		rec, err := decodeMessage(in.Body)
		if err != nil {
			return nil, err
		}
		if rec.Scope != in.Scope {
			return nil, scopeMismatch(in, rec.Scope)
		}
		if in.Topic == TopicMessages {
			return MessageCreated{Record: rec}, nil
		}
		return MessageUpdated{Record: rec}, nil

	case TopicMessageDeletes:
		var dto models.MessageDeletedDTO
		if err := unmarshalStrict(in.Body, &dto); err != nil {
			return nil, err
		}
		if dto.MessageID == nil {
			return nil, fmt.Errorf("%w: delete without messageId", pkg.ErrMalformedPayload)
		}
		scope, err := payloadScope(in, dto.ChannelID, dto.DirectMessageChatID)
		if err != nil {
			return nil, err
		}
		return MessageDeleted{Scope: scope, MessageID: *dto.MessageID, DeletedBy: dto.DeletedBy}, nil

	case TopicReactions:
		var dto models.MessageDTO
		if err := unmarshalStrict(in.Body, &dto); err != nil {
			return nil, err
		}
		if dto.ID == nil {
			return nil, fmt.Errorf("%w: reaction snapshot without id", pkg.ErrMalformedPayload)
		}
		scope, err := payloadScope(in, dto.ChannelID, dto.DirectMessageChatID)
		if err != nil {
			return nil, err
		}
		return ReactionSnapshot{
			Scope:     scope,
			MessageID: *dto.ID,
			ByEmoji:   dto.Reactors(),
			Counts:    dto.ReactionCounts,
		}, nil

	case TopicTyping:
		var dto models.TypingIndicatorDTO
		if err := unmarshalStrict(in.Body, &dto); err != nil {
			return nil, err
		}
		if dto.UserID == nil {
			return nil, fmt.Errorf("%w: typing without userId", pkg.ErrMalformedPayload)
		}
		scope, err := payloadScope(in, dto.ChannelID, dto.DirectMessageChatID)
		if err != nil {
			return nil, err
		}
		typing := true
		if dto.IsTyping != nil {
			typing = *dto.IsTyping
		}
		return TypingSignal{Scope: scope, UserID: *dto.UserID, DisplayName: dto.Username, IsTyping: typing}, nil

	case TopicUserUpdates:
		var dto models.UserDTO
		if err := unmarshalStrict(in.Body, &dto); err != nil {
			return nil, err
		}
		user, err := dto.ToUser()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
		}
		return UserUpdated{User: *user}, nil

	case TopicErrors:
		var dto models.ServerErrorDTO
		if err := unmarshalStrict(in.Body, &dto); err != nil {
			return nil, err
		}
		text := dto.Text()
		if text == "" {
			return nil, fmt.Errorf("%w: empty server error", pkg.ErrMalformedPayload)
		}
		return ServerError{Text: text}, nil
	}

	return nil, fmt.Errorf("%w: unknown topic %q", pkg.ErrMalformedPayload, in.Topic)
}

func decodeMessage(body []byte) (*models.MessageRecord, error) {
	var dto models.MessageDTO
	if err := unmarshalStrict(body, &dto); err != nil {
		return nil, err
	}
	rec, err := dto.ToRecord()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	return rec, nil
}

// unmarshalStrict, body'nin bir JSON object olmasını şart koşar.
func unmarshalStrict(body []byte, out any) error {
	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	return nil
}

// payloadScope, payload'daki scope alanlarını doğrular. Hiçbiri yoksa
// subscription'ın scope'u kullanılır; varsa eşleşmek zorunda.
func payloadScope(in Inbound, channelID, dmID *int64) (models.ChatScope, error) {
	if channelID == nil && dmID == nil {
		return in.Scope, nil
	}
	scope, err := models.ScopeFromIDs(channelID, dmID)
	if err != nil {
		return models.ChatScope{}, fmt.Errorf("%w: %v", pkg.ErrMalformedPayload, err)
	}
	if scope != in.Scope {
		return models.ChatScope{}, scopeMismatch(in, scope)
	}
	return scope, nil
}

func scopeMismatch(in Inbound, got models.ChatScope) error {
	return fmt.Errorf("%w: %s frame for %s arrived on %s", pkg.ErrMalformedPayload, in.Topic, got, in.Scope)
}
