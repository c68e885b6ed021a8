package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
)

// MessageCache, scope başına deduplike edilmiş, zaman sıralı mesaj listesini tutar.
//
// Sıralama: createdAt artan, eşitlikte id artan (deterministik).
// Dedup: her scope'un "görülen id" kümesi vardır; aynı id ikinci kez eklenmez.
// Mesaj id'leri sistem genelinde benzersiz olduğundan ayrıca global bir
// id → scope index'i tutulur (reaksiyon fold'u scope bilmeden mesaj bulur).
//
// Cache record'ların tek sahibidir. Dışarı verilen her record kopyadır.
type MessageCache struct {
	mu     sync.RWMutex
	scopes map[models.ChatScope]*scopeMessages
	index  map[int64]models.ChatScope
}

type scopeMessages struct {
	records []*models.MessageRecord
	seen    map[int64]*models.MessageRecord
	// stale: bağlantı koptuğu için snapshot kaçırılmış event içerebilir.
	stale bool
	// nextPage: LoadOlder'ın isteyeceği sayfa; hasMore: daha eski sayfa var mı.
	nextPage int
	hasMore  bool
}

// UpdateResult, ApplyUpdate'in ne yaptığını anlatır.
type UpdateResult struct {
	// Created: kayıt yoktu, create olarak eklendi.
	Created bool
	// MarkedEdited: bu update ile "(edited)" işareti ilk kez kondu.
	MarkedEdited bool
}

// NewMessageCache, boş cache.
func NewMessageCache() *MessageCache {
	return &MessageCache{
		scopes: make(map[models.ChatScope]*scopeMessages),
		index:  make(map[int64]models.ChatScope),
	}
}

func newScopeMessages() *scopeMessages {
	return &scopeMessages{seen: make(map[int64]*models.MessageRecord)}
}

// Load, scope'un listesini sunucu sayfasıyla tamamen değiştirir.
// Sayfadaki tekrar eden id'lerden sonuncusu kazanır.
func (c *MessageCache) Load(page *models.MessagePage) error {
	if page == nil || page.Scope.IsZero() {
		return fmt.Errorf("%w: page without scope", pkg.ErrBadRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.scopes[page.Scope]; ok {
		for id := range old.seen {
			delete(c.index, id)
		}
	}

	sm := newScopeMessages()
	for _, rec := range page.Records {
		if rec == nil || rec.Scope != page.Scope {
			continue
		}
		if c.ownedElsewhereLocked(rec.ID, page.Scope) {
			continue
		}
		stored := prepareStored(rec)
		if prev, dup := sm.seen[rec.ID]; dup {
			*prev = *stored
			continue
		}
		sm.seen[rec.ID] = stored
		sm.records = append(sm.records, stored)
		c.index[rec.ID] = page.Scope
	}
	sort.SliceStable(sm.records, func(i, j int) bool { return sm.records[i].Before(sm.records[j]) })

	sm.nextPage = page.Page + 1
	sm.hasMore = page.HasMore
	c.scopes[page.Scope] = sm
	return nil
}

// Merge, daha eski bir sayfayı mevcut listeye ekler; bilinen id'ler atlanır.
// Eklenen kayıt sayısını döner.
func (c *MessageCache) Merge(page *models.MessagePage) int {
	if page == nil || page.Scope.IsZero() {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sm := c.scopeLocked(page.Scope)
	added := 0
	for _, rec := range page.Records {
		if rec == nil || rec.Scope != page.Scope {
			continue
		}
		if _, dup := sm.seen[rec.ID]; dup || c.ownedElsewhereLocked(rec.ID, page.Scope) {
			continue
		}
		c.insertLocked(sm, prepareStored(rec))
		added++
	}
	if page.Page+1 > sm.nextPage {
		sm.nextPage = page.Page + 1
	}
	sm.hasMore = page.HasMore
	return added
}

// ownedElsewhereLocked, id başka bir scope'ta kayıtlıysa true döner.
// Id'ler sistem genelinde benzersizdir; aynı id'nin ikinci scope'a girmesi
// index'i o scope'a çevirir ve ilk scope'taki kayıt güncellenemez hale gelir.
func (c *MessageCache) ownedElsewhereLocked(id int64, scope models.ChatScope) bool {
	owner, ok := c.index[id]
	return ok && owner != scope
}

// ApplyCreate, id görülmemişse kaydı sıralı konuma ekler. Aksi halde no-op (idempotent).
func (c *MessageCache) ApplyCreate(rec *models.MessageRecord) bool {
	if rec == nil || rec.Scope.IsZero() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.index[rec.ID]; known {
		return false
	}
	c.insertLocked(c.scopeLocked(rec.Scope), prepareStored(rec))
	return true
}

// ApplyUpdate, aynı id'li kaydı değiştirir. Kayıt yoksa create gibi davranır
// (update, create'ten önce gelmiş olabilir).
//
// "(edited)" kuralları:
//   - İşaret sadece Edited false→true geçişinde ve içerik değiştiğinde ilk kez konur.
//   - Konmuş işaret sonraki update'lerde korunur, çoğaltılmaz.
//   - İçeriği değişmeyen (sadece reaksiyon) update'ler edited durumunu değiştirmez.
func (c *MessageCache) ApplyUpdate(rec *models.MessageRecord) (UpdateResult, error) {
	if rec == nil || rec.Scope.IsZero() {
		return UpdateResult{}, fmt.Errorf("%w: update without scope", pkg.ErrBadRequest)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	scope, known := c.index[rec.ID]
	if !known {
		c.insertLocked(c.scopeLocked(rec.Scope), prepareStored(rec))
		return UpdateResult{Created: true}, nil
	}
	if scope != rec.Scope {
		return UpdateResult{}, fmt.Errorf("%w: message %d belongs to %s, update claims %s",
			pkg.ErrMalformedPayload, rec.ID, scope, rec.Scope)
	}

	sm := c.scopes[scope]
	stored := sm.seen[rec.ID]
	next := rec.Clone()

	var result UpdateResult
	contentChanged := next.Content != stored.Content
	switch {
	case !contentChanged:
		next.Edited = stored.Edited
		next.EditedMarker = stored.EditedMarker
	case next.Edited && !stored.Edited:
		next.EditedMarker = true
		result.MarkedEdited = !stored.EditedMarker
	default:
		next.EditedMarker = stored.EditedMarker || next.Edited
	}

	// createdAt değişmediyse yerinde güncelle; değiştiyse (olmamalı) yeniden sırala.
	if next.CreatedAt.Equal(stored.CreatedAt) {
		*stored = *next
		return result, nil
	}
	c.removeLocked(sm, rec.ID)
	c.insertLocked(sm, next)
	return result, nil
}

// ApplyDelete, kaydı ve id'sini scope'un görülen kümesinden siler.
// Aynı id sonra tekrar create edilebilir (silme kalıcı değil).
func (c *MessageCache) ApplyDelete(scope models.ChatScope, id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sm, ok := c.scopes[scope]
	if !ok {
		return false
	}
	if _, ok := sm.seen[id]; !ok {
		return false
	}
	c.removeLocked(sm, id)
	return true
}

// Get, scope'un sıralı snapshot'ı. Kayıtlar kopyadır.
func (c *MessageCache) Get(scope models.ChatScope) []*models.MessageRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sm, ok := c.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]*models.MessageRecord, len(sm.records))
	for i, rec := range sm.records {
		out[i] = rec.Clone()
	}
	return out
}

// Find, id ile kaydın kopyasını bulur.
func (c *MessageCache) Find(id int64) (*models.MessageRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scope, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.scopes[scope].seen[id].Clone(), true
}

// Has, scope için cache'lenmiş bir snapshot var mı?
func (c *MessageCache) Has(scope models.ChatScope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.scopes[scope]
	return ok
}

// Len, scope'taki kayıt sayısı.
func (c *MessageCache) Len(scope models.ChatScope) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if sm, ok := c.scopes[scope]; ok {
		return len(sm.records)
	}
	return 0
}

// MarkStale, scope snapshot'ını "kaçırılmış event olabilir" diye işaretler.
func (c *MessageCache) MarkStale(scope models.ChatScope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sm, ok := c.scopes[scope]; ok {
		sm.stale = true
	}
}

// IsStale, scope işaretli mi? Snapshot yoksa false.
func (c *MessageCache) IsStale(scope models.ChatScope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sm, ok := c.scopes[scope]
	return ok && sm.stale
}

// NextPage, LoadOlder için sonraki sayfa numarası ve daha eski sayfa olup olmadığı.
func (c *MessageCache) NextPage(scope models.ChatScope) (page int, hasMore bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sm, ok := c.scopes[scope]
	if !ok {
		return 0, true
	}
	return sm.nextPage, sm.hasMore
}

// MutateReactions, mesajın reaksiyon state'ini yerinde değiştirir. Mesaj yoksa false.
// fn cache lock'u altında çalışır; içinden cache çağrılmamalı.
func (c *MessageCache) MutateReactions(id int64, fn func(rs *models.ReactionState)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	scope, ok := c.index[id]
	if !ok {
		return false
	}
	fn(&c.scopes[scope].seen[id].Reactions)
	return true
}

// UpdateSender, profil güncellemesinden sonra kullanıcının tüm kayıtlarındaki
// görünen adı ve avatarı yeniler. Değişen kayıt sayısını döner.
func (c *MessageCache) UpdateSender(user models.User) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for _, sm := range c.scopes {
		for _, rec := range sm.records {
			if rec.SenderID != user.ID {
				continue
			}
			if rec.SenderDisplay == user.Username && rec.SenderAvatarRef == user.AvatarURL {
				continue
			}
			rec.SenderDisplay = user.Username
			rec.SenderAvatarRef = user.AvatarURL
			changed++
		}
	}
	return changed
}

// Reset, tüm cache'i boşaltır (logout).
func (c *MessageCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scopes = make(map[models.ChatScope]*scopeMessages)
	c.index = make(map[int64]models.ChatScope)
}

func (c *MessageCache) scopeLocked(scope models.ChatScope) *scopeMessages {
	sm, ok := c.scopes[scope]
	if !ok {
		sm = newScopeMessages()
		c.scopes[scope] = sm
	}
	return sm
}

// insertLocked, kaydı binary search ile sıralı konuma yerleştirir.
func (c *MessageCache) insertLocked(sm *scopeMessages, rec *models.MessageRecord) {
	i := sort.Search(len(sm.records), func(i int) bool { return rec.Before(sm.records[i]) })
	sm.records = append(sm.records, nil)
	copy(sm.records[i+1:], sm.records[i:])
	sm.records[i] = rec
	sm.seen[rec.ID] = rec
	c.index[rec.ID] = rec.Scope
}

func (c *MessageCache) removeLocked(sm *scopeMessages, id int64) {
	for i, rec := range sm.records {
		if rec.ID == id {
			sm.records = append(sm.records[:i], sm.records[i+1:]...)
			break
		}
	}
	delete(sm.seen, id)
	delete(c.index, id)
}

// prepareStored, dışarıdan gelen kaydın cache'e girecek kopyasını hazırlar.
// Edited olarak gelen kayıt işaretle birlikte saklanır.
func prepareStored(rec *models.MessageRecord) *models.MessageRecord {
	stored := rec.Clone()
	if stored.Edited {
		stored.EditedMarker = true
	}
	return stored
}
