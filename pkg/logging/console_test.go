package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"quiet", LevelQuiet},
		{"normal", LevelNormal},
		{"verbose", LevelVerbose},
		{"debug", LevelDebug},
		{"loud", LevelNormal},
		{"", LevelNormal},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestConsole_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(LevelQuiet, &buf)

	c.Infof("progress %d", 1)
	c.Debugf("internal")
	c.Warnf("overlay missing")
	c.Errorf("session failed")

	out := buf.String()
	assert.NotContains(t, out, "progress")
	assert.NotContains(t, out, "internal")
	assert.Contains(t, out, "⚠ Warning: overlay missing")
	assert.Contains(t, out, "✗ Error: session failed")
	assert.NotContains(t, out, "\033[", "non-terminal writers get no color codes")
}

func TestConsole_DebugShowsEverything(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(LevelDebug, &buf)

	c.Infof("info")
	c.Verbosef("verbose")
	c.Debugf("debug")

	assert.Contains(t, buf.String(), "info")
	assert.Contains(t, buf.String(), "→ verbose")
	assert.Contains(t, buf.String(), "[DEBUG] debug")
}

func TestWithPrefixAndTee(t *testing.T) {
	var a, b bytes.Buffer
	l := WithPrefix(Tee(NewConsole(LevelNormal, &a), NewConsole(LevelNormal, &b)), "SmartUI Test chromium desktop")

	l.Infof("navigating %s", "company")

	assert.Contains(t, a.String(), "[SmartUI Test chromium desktop] navigating company")
	assert.Equal(t, a.String(), b.String())
}

func TestOrDiscard(t *testing.T) {
	assert.Equal(t, Discard, OrDiscard(nil))
	c := NewConsole(LevelNormal, &bytes.Buffer{})
	assert.Equal(t, Logger(c), OrDiscard(c))
}
