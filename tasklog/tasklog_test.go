package tasklog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriterLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf)
	log.LogMessage("first line")
	log.LogMessage("second line")
	require.Equal(t, "first line\nsecond line\n", buf.String())
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewZapLogger(zap.New(core).Sugar())
	log.LogMessage("challenge published")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "challenge published", entries[0].Message)
}

func TestDiscard(t *testing.T) {
	require.NotPanics(t, func() { Discard.LogMessage("dropped") })
}
