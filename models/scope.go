package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeKind, bir konuşmanın türü.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeChannel
	ScopeDirectMessage
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeChannel:
		return "channel"
	case ScopeDirectMessage:
		return "dm"
	default:
		return "none"
	}
}

// ChatScope, aktif konuşmanın kimliği: (kind, id) çifti.
//
// Cache, subscription ve typing tracker hepsi bu değeri key olarak kullanır.
// Struct comparable olduğu için doğrudan map key'i olabilir ve == ile karşılaştırılır.
// Zero value (ScopeNone) "seçili chat yok" anlamına gelir.
type ChatScope struct {
	Kind ScopeKind
	ID   int64
}

// ChannelScope, kanal konuşması için scope üretir.
func ChannelScope(id int64) ChatScope {
	return ChatScope{Kind: ScopeChannel, ID: id}
}

// DirectMessageScope, DM konuşması için scope üretir.
func DirectMessageScope(id int64) ChatScope {
	return ChatScope{Kind: ScopeDirectMessage, ID: id}
}

// IsZero, scope seçilmemişse true döner.
func (s ChatScope) IsZero() bool {
	return s.Kind == ScopeNone
}

// IsChannel, kanal scope'u mu?
func (s ChatScope) IsChannel() bool {
	return s.Kind == ScopeChannel
}

// String, "channel:5" veya "dm:9" formatında döner. ParseScope ile geri okunur.
func (s ChatScope) String() string {
	if s.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// TopicBase, STOMP topic'lerinin ortak prefix'i.
//
//	Channel(5) → /topic/channels/5
//	DM(9)      → /topic/dm/9
func (s ChatScope) TopicBase() string {
	switch s.Kind {
	case ScopeChannel:
		return fmt.Sprintf("/topic/channels/%d", s.ID)
	case ScopeDirectMessage:
		return fmt.Sprintf("/topic/dm/%d", s.ID)
	default:
		return ""
	}
}

// ParseScope, String() çıktısını tekrar ChatScope'a çevirir.
// CLI flag'leri ve kaydedilmiş "son scope" bu formatı kullanır.
func ParseScope(raw string) (ChatScope, error) {
	kind, idPart, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return ChatScope{}, fmt.Errorf("invalid scope %q: expected kind:id", raw)
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return ChatScope{}, fmt.Errorf("invalid scope id %q", idPart)
	}

	switch kind {
	case "channel":
		return ChannelScope(id), nil
	case "dm":
		return DirectMessageScope(id), nil
	default:
		return ChatScope{}, fmt.Errorf("invalid scope kind %q", kind)
	}
}

// ScopeFromIDs, sunucu DTO'larındaki channelId / directMessageChatId alanlarından
// scope çıkarır. Tam olarak biri dolu olmalı; ikisi birden veya hiçbiri → hata.
func ScopeFromIDs(channelID, directMessageChatID *int64) (ChatScope, error) {
	switch {
	case channelID != nil && directMessageChatID != nil:
		return ChatScope{}, fmt.Errorf("both channelId and directMessageChatId set")
	case channelID != nil:
		return ChannelScope(*channelID), nil
	case directMessageChatID != nil:
		return DirectMessageScope(*directMessageChatID), nil
	default:
		return ChatScope{}, fmt.Errorf("neither channelId nor directMessageChatId set")
	}
}

// IDs, ScopeFromIDs'in tersi, giden payload'lara konacak alanları döner.
func (s ChatScope) IDs() (channelID, directMessageChatID *int64) {
	id := s.ID
	switch s.Kind {
	case ScopeChannel:
		return &id, nil
	case ScopeDirectMessage:
		return nil, &id
	default:
		return nil, nil
	}
}
