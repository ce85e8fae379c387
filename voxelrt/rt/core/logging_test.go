package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggerSubAndDebug(t *testing.T) {
	var out, errOut bytes.Buffer
	root := NewDefaultLoggerTo(&out, &errOut, "manoka", false)
	sub := root.Sub("gpu")

	sub.Debugf("hidden %d", 1)
	assert.Empty(t, out.String())

	root.SetDebug(true)
	assert.True(t, sub.DebugEnabled(), "debug flag is shared")
	sub.Debugf("shown %d", 2)
	sub.Errorf("boom")

	assert.True(t, strings.Contains(out.String(), "[manoka/gpu] DEBUG: shown 2"))
	assert.True(t, strings.Contains(errOut.String(), "[manoka/gpu] ERROR: boom"))

	assert.NotNil(t, OrNop(nil))
}
