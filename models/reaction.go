package models

import "sort"

// Reactor, bir emojiye tepki veren kullanıcı.
type Reactor struct {
	UserID      int64  `json:"id"`
	DisplayName string `json:"username"`
}

// ReactionState, bir mesajın tepki durumu: emoji → tepki veren kullanıcı kümesi.
//
// Count ayrı tutulmaz, her zaman küme boyutundan türetilir. Bu sayede
// "count == len(reactors)" invariant'ı yapısal olarak garanti altındadır.
// Son reactor çıkarılınca emoji entry'si tamamen silinir (0'da bırakılmaz).
//
// Zero value kullanıma hazırdır; map ilk Add'de oluşturulur.
type ReactionState struct {
	reactors map[string]map[int64]Reactor
}

// NewReactionState, sunucu snapshot'ından (emoji → kullanıcı listesi) state kurar.
// Boş listeler atlanır.
func NewReactionState(byEmoji map[string][]Reactor) ReactionState {
	var rs ReactionState
	for emoji, users := range byEmoji {
		for _, u := range users {
			rs.Add(emoji, u)
		}
	}
	return rs
}

// Add, kullanıcıyı emoji kümesine ekler. Zaten varsa false döner.
func (rs *ReactionState) Add(emoji string, r Reactor) bool {
	if rs.reactors == nil {
		rs.reactors = make(map[string]map[int64]Reactor)
	}
	set, ok := rs.reactors[emoji]
	if !ok {
		set = make(map[int64]Reactor)
		rs.reactors[emoji] = set
	}
	if _, exists := set[r.UserID]; exists {
		return false
	}
	set[r.UserID] = r
	return true
}

// Remove, kullanıcıyı emoji kümesinden çıkarır. Küme boşalırsa emoji silinir.
func (rs *ReactionState) Remove(emoji string, userID int64) bool {
	set, ok := rs.reactors[emoji]
	if !ok {
		return false
	}
	if _, exists := set[userID]; !exists {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(rs.reactors, emoji)
	}
	return true
}

// Has, kullanıcı bu emojiye tepki vermiş mi?
func (rs ReactionState) Has(emoji string, userID int64) bool {
	_, ok := rs.reactors[emoji][userID]
	return ok
}

// Count, emojinin tepki sayısı (= küme boyutu).
func (rs ReactionState) Count(emoji string) int {
	return len(rs.reactors[emoji])
}

// Len, farklı emoji sayısı.
func (rs ReactionState) Len() int {
	return len(rs.reactors)
}

// Emojis, emojileri deterministik sırada döner.
func (rs ReactionState) Emojis() []string {
	emojis := make([]string, 0, len(rs.reactors))
	for e := range rs.reactors {
		emojis = append(emojis, e)
	}
	sort.Strings(emojis)
	return emojis
}

// Reactors, emojiye tepki verenleri userID sırasıyla döner.
func (rs ReactionState) Reactors(emoji string) []Reactor {
	set := rs.reactors[emoji]
	out := make([]Reactor, 0, len(set))
	for _, r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Clone, derin kopya, cache dışına verilen snapshot'lar paylaşımlı map taşımamalı.
func (rs ReactionState) Clone() ReactionState {
	if rs.reactors == nil {
		return ReactionState{}
	}
	out := ReactionState{reactors: make(map[string]map[int64]Reactor, len(rs.reactors))}
	for emoji, set := range rs.reactors {
		cp := make(map[int64]Reactor, len(set))
		for id, r := range set {
			cp[id] = r
		}
		out.reactors[emoji] = cp
	}
	return out
}

// ReactionGroup, bir emojinin render edilecek özeti.
//
// Örnek: 👍 3 [alice, bob, carol], ReactedByMe=true
// Rendering katmanı aktif kullanıcı tepki verdiyse butonu vurgular.
type ReactionGroup struct {
	Emoji       string
	Count       int
	Users       []string
	ReactedByMe bool
}

// Groups, ReactionState'i render edilecek listeye çevirir.
func (rs ReactionState) Groups(selfID int64) []ReactionGroup {
	groups := make([]ReactionGroup, 0, rs.Len())
	for _, emoji := range rs.Emojis() {
		reactors := rs.Reactors(emoji)
		names := make([]string, 0, len(reactors))
		for _, r := range reactors {
			names = append(names, r.DisplayName)
		}
		groups = append(groups, ReactionGroup{
			Emoji:       emoji,
			Count:       len(reactors),
			Users:       names,
			ReactedByMe: rs.Has(emoji, selfID),
		})
	}
	return groups
}
