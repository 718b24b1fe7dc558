package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l, err := New("prod", "debug")
	require.NoError(t, err)
	l.With("component", "test").Debug("hello", "k", 1)

	_, err = New("dev", "loud")
	assert.Error(t, err)

	Nop().Error("discarded")
}
