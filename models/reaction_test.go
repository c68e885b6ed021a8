package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReactionState_CountFollowsReactors(t *testing.T) {
	var rs ReactionState
	assert.True(t, rs.Add("👍", Reactor{UserID: 1, DisplayName: "me"}))
	assert.False(t, rs.Add("👍", Reactor{UserID: 1, DisplayName: "me"}), "set semantics")
	assert.True(t, rs.Add("👍", Reactor{UserID: 2, DisplayName: "amy"}))
	assert.Equal(t, 2, rs.Count("👍"))

	assert.True(t, rs.Remove("👍", 1))
	assert.False(t, rs.Remove("👍", 1))
	assert.Equal(t, 1, rs.Count("👍"))

	assert.True(t, rs.Remove("👍", 2))
	assert.Zero(t, rs.Len(), "emptied emoji is removed")
	assert.Empty(t, rs.Emojis())
}

func TestReactionState_CloneIsDeep(t *testing.T) {
	rs := NewReactionState(map[string][]Reactor{"🎉": {{UserID: 3, DisplayName: "bob"}}})
	cp := rs.Clone()
	cp.Add("🎉", Reactor{UserID: 4, DisplayName: "cat"})

	assert.Equal(t, 1, rs.Count("🎉"))
	assert.Equal(t, 2, cp.Count("🎉"))
}

func TestReactionState_Groups(t *testing.T) {
	rs := NewReactionState(map[string][]Reactor{
		"👍": {{UserID: 2, DisplayName: "amy"}, {UserID: 1, DisplayName: "me"}},
		"🎉": {{UserID: 3, DisplayName: "bob"}},
		"😢": {},
	})

	groups := rs.Groups(1)
	assert.Equal(t, []ReactionGroup{
		{Emoji: "🎉", Count: 1, Users: []string{"bob"}},
		{Emoji: "👍", Count: 2, Users: []string{"me", "amy"}, ReactedByMe: true},
	}, groups)
}
