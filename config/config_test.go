package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thechriswalker/egverify/crypto"
	"github.com/thechriswalker/egverify/crypto/elgamal"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New())
	require.NoError(t, err)
	assert.Nil(t, c.Prime)
	assert.Equal(t, crypto.BigEndian, c.ByteOrder)
	assert.Equal(t, runtime.NumCPU(), c.Workers)
	assert.False(t, c.FailFast)
	assert.Zero(t, c.Deadline)

	sys, err := c.System()
	require.NoError(t, err)
	def := elgamal.RFC3526Group14()
	assert.Zero(t, sys.P.Cmp(def.P))
	assert.Zero(t, sys.G.Cmp(def.G))
	assert.Len(t, c.Options(), 3)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("EGVERIFY_WORKERS", "3")
	t.Setenv("EGVERIFY_FAIL_FAST", "true")
	t.Setenv("EGVERIFY_DEADLINE", "90s")
	t.Setenv("EGVERIFY_BYTE_ORDER", "little")

	c, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 3, c.Workers)
	assert.True(t, c.FailFast)
	assert.Equal(t, 90*time.Second, c.Deadline)
	assert.Equal(t, crypto.LittleEndian, c.ByteOrder)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "egverify.yaml")
	yaml := "prime: \"227\"\ngenerator: \"0x45\"\nworkers: 2\nverbose: true\nhistory: runs.db\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	v := New()
	require.NoError(t, ReadFile(v, path))
	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Workers)
	assert.True(t, c.Verbose)
	assert.Equal(t, "runs.db", c.History)

	sys, err := c.System()
	require.NoError(t, err)
	assert.Equal(t, "227", sys.P.String())
	assert.Equal(t, "113", sys.Q.String())
	assert.Equal(t, "69", sys.G.String())
	assert.NoError(t, sys.Validate())
}

func TestMissingConfigFile(t *testing.T) {
	v := New()
	assert.Error(t, ReadFile(v, filepath.Join(t.TempDir(), "nope.yaml")))
}

func TestInvalid(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"bad prime":       {KeyPrime: "zzz", KeyGenerator: "2"},
		"prime only":      {KeyPrime: "227"},
		"negative":        {KeyPrime: "-227", KeyGenerator: "2"},
		"byte order":      {KeyByteOrder: "middle"},
		"negative budget": {KeyDeadline: "-1s"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			v := New()
			for k, val := range values {
				v.Set(k, val)
			}
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}
