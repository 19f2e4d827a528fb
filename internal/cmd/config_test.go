package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMapFromStruct(t *testing.T) {
	m := buildMapFromStruct(reflect.TypeOf(Sim{}))

	assert.Equal(t, int64(8), m["channels"])
	assert.Equal(t, int64(1024), m["fifoDepth"])
	assert.Equal(t, true, m["highSpeed"])
	assert.Equal(t, int64(16), m["endpoints"])
	assert.Equal(t, "", m["traceFile"])
}

func TestConfigInitWritesTemplate(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "fifo.json")
	c := &ConfigInit{Command: "fifo", Format: "json", Output: dest}
	require.NoError(t, c.Run())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, float64(1024), m["depth"])
	assert.Equal(t, "high", m["speed"])

	// A second run without --force must refuse to clobber the file.
	err = c.Run()
	require.Error(t, err)
	assert.ErrorContains(t, err, "destination exists")
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "yaml", normalizeFormat("yml"))
	assert.Equal(t, "toml", normalizeFormat("TOML"))
	assert.Equal(t, "", normalizeFormat("ini"))
}
