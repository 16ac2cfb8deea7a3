package services

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestEditWindowOpen(t *testing.T) {
	clock := clockwork.NewFakeClock()
	createdAt := clock.Now()

	assert.True(t, editWindowOpen(clock, createdAt), "a fresh message is editable")

	clock.Advance(14 * time.Minute)
	assert.True(t, editWindowOpen(clock, createdAt), "still inside the window")

	clock.Advance(time.Minute)
	assert.True(t, editWindowOpen(clock, createdAt), "the boundary itself is editable")

	clock.Advance(time.Second)
	assert.False(t, editWindowOpen(clock, createdAt), "past the window")
}
