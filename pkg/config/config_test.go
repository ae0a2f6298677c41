package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 7, c.Switch.LinearMax)
	assert.Equal(t, 0.5, c.Switch.DensityMin)
	assert.Equal(t, 300, c.Switch.RangeMax)
	assert.Equal(t, 30011, c.Switch.HashCapacity)
	assert.Equal(t, Auto, c.Switch.Strategy)
	assert.True(t, c.Comments)
	assert.NoError(t, c.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
switch:
  linear_max: 3
  strategy: hash
comments: false
`))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Switch.LinearMax)
	assert.Equal(t, Hash, c.Switch.Strategy)
	assert.Equal(t, 300, c.Switch.RangeMax)
	assert.False(t, c.Comments)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "switch: [", "parse config"},
		{"bad strategy", "switch: {strategy: binary}", "unknown switch strategy"},
		{"bad imm", "switch: {imm_min: 10, imm_max: 0}", "imm_min"},
		{"bad capacity", "switch: {hash_capacity: 0}", "hash_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kplc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("switch:\n  range_max: 50\n"), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50, c.Switch.RangeMax)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
