package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		log, err := newLogger(level)
		require.NoError(t, err, "level %q should be accepted", level)
		require.NotNil(t, log)
	}

	_, err := newLogger("verbose")
	assert.Error(t, err)
}
