package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUserCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"memberships":[{"user":{"id":5302428,"fullname":"Paul Estrada"}}]}]`), 0o644))
	t.Setenv("MEMBERS_PATH", path)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"lookup-user", "paul", "estrada"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "5302428\n", out.String())

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"lookup-user", "Nobody"})
	assert.Error(t, cmd.Execute())
}

func TestCatalogCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"Gondor","image":"/g.png","rarity":"rare","aliases":["white city"]}]`), 0o644))
	t.Setenv("CATALOG_PATH", path)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"catalog"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Gondor")
	assert.Contains(t, out.String(), "white city")
}

func TestMembersCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"memberships":[{"user":{"id":7,"fullname":"Ben Tso"}},{"user":{"id":5302428,"fullname":"Ada Lim"}}]}]`), 0o644))
	t.Setenv("MEMBERS_PATH", path)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"members"})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "5302428")
	assert.Contains(t, lines[1], "Ada Lim")
	assert.Contains(t, lines[2], "Ben Tso")
}

func TestCursorCmd_RequiresRedis(t *testing.T) {
	t.Setenv("CURSOR_STORE", "memory")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"cursor"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CURSOR_STORE=redis")
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestCursorCmd_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	t.Setenv("CURSOR_STORE", "redis")
	t.Setenv("REDIS_HOST", host)
	t.Setenv("REDIS_PORT", port)
	t.Setenv("REDIS_KEY_PREFIX", "ballbot-cli-test")

	execute := func(args ...string) string {
		var out bytes.Buffer
		cmd := newRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return strings.TrimSpace(out.String())
	}

	execute("cursor", "--clear-cache")
	assert.Equal(t, "no cursor stored", execute("cursor"))
	assert.Equal(t, "no cursor stored", execute("cursor", "--reset"))
}
