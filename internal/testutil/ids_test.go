package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("inv-1")
	assert.Equal(t, "inv-1", gen.Generate())
	assert.Equal(t, "inv-1", gen.Generate())
}

func TestFixedIDGenerator_Default(t *testing.T) {
	assert.Equal(t, "test-invocation", NewFixedIDGenerator("").Generate())
}
