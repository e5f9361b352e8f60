package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidType(t *testing.T) {
	for _, typ := range []Type{TypeOpen, TypeMessage, TypeBeforeClose, TypeClose, TypeGhostConnectionClose} {
		assert.True(t, ValidType(typ), typ)
	}
	assert.False(t, ValidType("upgrade"))
	assert.False(t, ValidType(""))
}
