package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReactionsAdd(t *testing.T) {
	r := Reactions{}

	assert.True(t, r.Add("👍", 7))
	assert.True(t, r.Add("👍", 3))
	assert.Equal(t, []int64{3, 7}, r["👍"], "user ids are kept sorted")

	assert.False(t, r.Add("👍", 7), "re-adding the same pair is a no-op")
	assert.Equal(t, []int64{3, 7}, r["👍"])

	assert.True(t, r.Add("🎉", 7))
	assert.Len(t, r, 2)
}

func TestReactionsRemove(t *testing.T) {
	r := Reactions{}
	r.Add("👍", 3)
	r.Add("👍", 7)

	assert.True(t, r.Remove("👍", 3))
	assert.Equal(t, []int64{7}, r["👍"])

	assert.False(t, r.Remove("👍", 3), "removing an absent pair is a no-op")
	assert.False(t, r.Remove("🎉", 7), "removing from an absent emoji is a no-op")

	assert.True(t, r.Remove("👍", 7))
	_, ok := r["👍"]
	assert.False(t, ok, "an emoji with no users left is dropped")
}

func TestMessageDeleted(t *testing.T) {
	var msg Message
	require.False(t, msg.Deleted())

	now := time.Now()
	msg.DeletedAt = &now
	require.True(t, msg.Deleted())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("field %s is bad", "name")
	assert.True(t, IsValidationError(err))
	assert.Equal(t, "field name is bad", err.Error())

	assert.False(t, IsValidationError(ErrNotFound))
	assert.False(t, IsValidationError(nil))
}
