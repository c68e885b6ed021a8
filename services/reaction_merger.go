package services

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// MaxEmojiLength, bir emoji string'inin maksimum karakter uzunluğu.
// Bileşik emojiler (aile, bayrak vb.) 10+ codepoint olabilir; 32 geniş bir marj.
const MaxEmojiLength = 32

// ReactionIntent, toggle sonucunda sunucuya gönderilecek istek.
type ReactionIntent int

const (
	// ReactionNone: hiçbir şey gönderilmez (picker'dan tekrar ekleme).
	ReactionNone ReactionIntent = iota
	ReactionAdd
	ReactionRemove
)

func (i ReactionIntent) String() string {
	switch i {
	case ReactionAdd:
		return "add"
	case ReactionRemove:
		return "remove"
	default:
		return "none"
	}
}

// ReactionMerger, kullanıcının reaksiyon tıklamalarını yorumlar ve sunucu
// snapshot'larını cache'e katlar.
//
// Toggle kararı yereldir (optimistic): kullanıcı reactor kümesindeyse remove,
// değilse add. Başka bir client'la yarışabilir; kilitleme yapılmaz.
// Sunucunun snapshot'ı her zaman kazanır ve yerel tahmini tamamen ezer.
type ReactionMerger struct {
	cache *MessageCache
	log   *zap.Logger
}

// NewReactionMerger, constructor.
func NewReactionMerger(cache *MessageCache, log *zap.Logger) *ReactionMerger {
	return &ReactionMerger{cache: cache, log: log}
}

// ValidateEmoji, boş veya çok uzun emoji'leri reddeder.
func ValidateEmoji(emoji string) error {
	if emoji == "" {
		return fmt.Errorf("%w: emoji is required", pkg.ErrBadRequest)
	}
	if utf8.RuneCountInString(emoji) > MaxEmojiLength {
		return fmt.Errorf("%w: emoji too long", pkg.ErrBadRequest)
	}
	return nil
}

// Toggle, mesajın mevcut reaksiyon durumuna bakarak intent'i hesaplar ve
// optimistic değişikliği cache'e uygular.
//
// fromPicker: tıklama emoji picker'dan geldiyse ve kullanıcı zaten tepki
// verdiyse ReactionNone döner (picker "ekle" anlamına gelir, kaldırmaz).
func (m *ReactionMerger) Toggle(self models.Reactor, messageID int64, emoji string, fromPicker bool) (ReactionIntent, error) {
	if err := ValidateEmoji(emoji); err != nil {
		return ReactionNone, err
	}

	intent := ReactionNone
	found := m.cache.MutateReactions(messageID, func(rs *models.ReactionState) {
		switch {
		case rs.Has(emoji, self.UserID) && fromPicker:
			intent = ReactionNone
		case rs.Has(emoji, self.UserID):
			rs.Remove(emoji, self.UserID)
			intent = ReactionRemove
		default:
			rs.Add(emoji, self)
			intent = ReactionAdd
		}
	})
	if !found {
		return ReactionNone, fmt.Errorf("%w: message %d", pkg.ErrNotFound, messageID)
	}

	if intent == ReactionNone {
		m.log.Debug("picker re-add ignored", zap.Int64("message_id", messageID), zap.String("emoji", emoji))
	}
	return intent, nil
}

// Revert, gönderilemeyen bir intent'in optimistic etkisini geri alır.
func (m *ReactionMerger) Revert(self models.Reactor, messageID int64, emoji string, intent ReactionIntent) {
	m.cache.MutateReactions(messageID, func(rs *models.ReactionState) {
		switch intent {
		case ReactionAdd:
			rs.Remove(emoji, self.UserID)
		case ReactionRemove:
			rs.Add(emoji, self)
		}
	})
}

// FoldServerSnapshot, mesajın ReactionState'ini sunucu snapshot'ıyla tamamen değiştirir.
//
// Reactor kümesi count'un kaynağıdır. counts ile küme boyutu uyuşmazsa loglanır;
// reactor'ı olmayan emoji snapshot'a girmez. Mesaj cache'te yoksa false döner.
func (m *ReactionMerger) FoldServerSnapshot(messageID int64, byEmoji map[string][]models.Reactor, counts map[string]int) bool {
	next := models.NewReactionState(byEmoji)

	for emoji, count := range counts {
		if got := next.Count(emoji); got != count {
			m.log.Warn("reaction count mismatch",
				zap.Int64("message_id", messageID),
				zap.String("emoji", emoji),
				zap.Int("server_count", count),
				zap.Int("reactors", got),
			)
		}
	}

	return m.cache.MutateReactions(messageID, func(rs *models.ReactionState) {
		*rs = next
	})
}

// Display, mesajın render edilecek reaksiyon grupları.
func (m *ReactionMerger) Display(messageID int64, selfID int64) ([]models.ReactionGroup, bool) {
	rec, ok := m.cache.Find(messageID)
	if !ok {
		return nil, false
	}
	return rec.Reactions.Groups(selfID), true
}
