package pgstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueIDsKeepsFirstOccurrence(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, uniqueIDs([]int64{3, 1, 3, 2, 1}))
	assert.Empty(t, uniqueIDs(nil))
}
