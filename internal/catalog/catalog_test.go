package catalog

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pronto-ballbot/internal/model"
)

const yamlCatalog = `
items:
  - name: Gondor
    image: images/gondor.png
    rarity: rare
    aliases: [minas tirith, White City]
  - name: Rohan
    image: /abs/rohan.png
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(writeFile(t, dir, "catalog.yaml", yamlCatalog))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	e, ok := c.Resolve("white city")
	require.True(t, ok)
	assert.Equal(t, "Gondor", e.OfficialName)
	assert.Equal(t, "rare", e.Rarity)
	assert.Equal(t, filepath.Join(dir, "images", "gondor.png"), e.ImageRef)

	e, ok = c.Resolve("ROHAN")
	require.True(t, ok)
	assert.Equal(t, "/abs/rohan.png", e.ImageRef)
}

func TestLoadYAMLList(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(writeFile(t, dir, "catalog.yml", "- name: Gondor\n  image: g.png\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(writeFile(t, dir, "catalog.json",
		`[{"name":"Gondor","image":"g.png","aliases":["minas tirith"]},{"name":"Mordor","image":"m.png"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Gondor", "Mordor"}, names(c.Entries()))
	assert.Equal(t, "Gondor", c.Canonical("Minas  Tirith"))
	assert.Equal(t, "Narnia", c.Canonical(" Narnia "))
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(writeFile(t, dir, "catalog.csv",
		"name,image,rarity,aliases\nGondor,g.png,rare,minas tirith|white city\nRohan,r.png,,\n"))
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	e, ok := c.Resolve("white city")
	require.True(t, ok)
	assert.Equal(t, "Gondor", e.OfficialName)
	assert.Equal(t, []string{"minas tirith", "white city"}, e.Aliases)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gondor.png", "x")
	writeFile(t, dir, "rohan.jpg", "x")
	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, ".hidden.png", "x")

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"gondor", "rohan"}, names(c.Entries()))

	e, ok := c.Resolve("Gondor")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "gondor.png"), e.ImageRef)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, dir, "catalog.toml", "x"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, dir, "empty.json", "[]"))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Load(writeFile(t, dir, "bad.csv", "image\ng.png\n"))
	assert.Error(t, err)
}

func TestNewRejectsCollidingAliases(t *testing.T) {
	_, err := New([]model.CatalogEntry{
		{OfficialName: "Gondor", Aliases: []string{"city"}},
		{OfficialName: "Rohan", Aliases: []string{"City"}},
	})
	assert.Error(t, err)

	c, err := New([]model.CatalogEntry{{OfficialName: "Gondor", Aliases: []string{"gondor"}}})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestRandomIsUniformOverEntries(t *testing.T) {
	c, err := New([]model.CatalogEntry{{OfficialName: "A"}, {OfficialName: "B"}, {OfficialName: "C"}})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	seen := map[string]int{}
	for i := 0; i < 3000; i++ {
		seen[c.Random(rng).OfficialName]++
	}
	require.Len(t, seen, 3)
	for name, n := range seen {
		assert.InDelta(t, 1000, n, 150, name)
	}
}

func TestStoreWatchReloads(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeFile(t, dir, "catalog.json", `[{"name":"Gondor","image":"g.png"}]`)

	s, err := Open(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	writeFile(t, dir, "catalog.json", `[{"name":"Gondor","image":"g.png"},{"name":"Rohan","image":"r.png"}]`)

	require.Eventually(t, func() bool { return s.Current().Len() == 2 }, 3*time.Second, 20*time.Millisecond)

	// a broken write keeps the last good snapshot
	writeFile(t, dir, "catalog.json", `{broken`)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, s.Current().Len())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestStaticStoreCannotReload(t *testing.T) {
	c, err := New([]model.CatalogEntry{{OfficialName: "Gondor"}})
	require.NoError(t, err)
	s := NewStatic(c)
	assert.Error(t, s.Reload())
	assert.Equal(t, "Gondor", s.Canonical("gondor"))
}

func names(entries []model.CatalogEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.OfficialName)
	}
	return out
}
