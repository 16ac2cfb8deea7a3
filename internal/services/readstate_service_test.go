package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastReadUpdateIsMonotonic(t *testing.T) {
	sqlStr, args, err := lastReadUpdate(10, 1, 77).ToSql()
	require.NoError(t, err)

	assert.Contains(t, sqlStr, "last_read_message_id IS NULL", "an unset cursor always advances")
	assert.Contains(t, sqlStr, "last_read_message_id < $", "a set cursor only moves forward")
	assert.Contains(t, args, int64(77))
	assert.Contains(t, args, int64(10))
	assert.Contains(t, args, int64(1))
}
