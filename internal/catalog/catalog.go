// Package catalog holds the read-only table of collectible items and resolves
// user-typed names and aliases to catalog entries.
package catalog

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pronto-ballbot/internal/model"
)

// ErrEmpty is returned when a catalog source yields no entries.
var ErrEmpty = errors.New("catalog: no entries")

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".mp4": true, ".mov": true, ".webm": true, ".mp3": true,
}

// Catalog is an immutable, indexed set of entries.
type Catalog struct {
	entries []model.CatalogEntry
	index   map[string]int
}

// New builds a catalog. Names and aliases are matched case-insensitively; an
// alias colliding with an earlier name is rejected.
func New(entries []model.CatalogEntry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		entries: make([]model.CatalogEntry, 0, len(entries)),
		index:   make(map[string]int),
	}
	for _, e := range entries {
		e.OfficialName = strings.TrimSpace(e.OfficialName)
		if e.OfficialName == "" {
			return nil, fmt.Errorf("catalog: entry with image %q has no name", e.ImageRef)
		}
		pos := len(c.entries)
		for _, name := range e.Names() {
			key := normalize(name)
			if key == "" {
				continue
			}
			if prev, ok := c.index[key]; ok && prev != pos {
				return nil, fmt.Errorf("catalog: name %q used by both %q and %q", name, c.entries[prev].OfficialName, e.OfficialName)
			}
			c.index[key] = pos
		}
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Resolve finds the entry whose official name or alias equals name, ignoring case.
func (c *Catalog) Resolve(name string) (model.CatalogEntry, bool) {
	i, ok := c.index[normalize(name)]
	if !ok {
		return model.CatalogEntry{}, false
	}
	return c.entries[i], true
}

// Canonical returns the official name for name when it is known, and name
// unchanged otherwise.
func (c *Catalog) Canonical(name string) string {
	if e, ok := c.Resolve(name); ok {
		return e.OfficialName
	}
	return strings.TrimSpace(name)
}

// Random picks an entry uniformly.
func (c *Catalog) Random(rng *rand.Rand) model.CatalogEntry {
	if rng == nil {
		return c.entries[rand.Intn(len(c.entries))]
	}
	return c.entries[rng.Intn(len(c.entries))]
}

// Entries returns a copy of all entries in load order.
func (c *Catalog) Entries() []model.CatalogEntry {
	return append([]model.CatalogEntry(nil), c.entries...)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Load reads a catalog from path. Files ending in .json, .yaml, .yml or .csv
// are parsed as tables; a directory is scanned for media files, each becoming
// an entry named after the file. Relative image references resolve against
// the catalog's own directory.
func Load(path string) (*Catalog, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if st.IsDir() {
		return loadDir(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var entries []model.CatalogEntry
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(raw, &entries)
	case ".yaml", ".yml":
		entries, err = decodeYAML(raw)
	case ".csv":
		entries, err = decodeCSV(bytes.NewReader(raw))
	default:
		return nil, fmt.Errorf("catalog: unsupported format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range entries {
		entries[i].ImageRef = resolveImage(base, entries[i].ImageRef)
	}
	return New(entries)
}

// decodeYAML accepts either a bare list or a document with an "items" key.
func decodeYAML(raw []byte) ([]model.CatalogEntry, error) {
	var doc struct {
		Items []model.CatalogEntry `yaml:"items"`
	}
	if err := yaml.Unmarshal(raw, &doc); err == nil && len(doc.Items) > 0 {
		return doc.Items, nil
	}
	var entries []model.CatalogEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// decodeCSV reads name,image,rarity,aliases rows with a header line. Aliases
// are separated by "|".
func decodeCSV(r io.Reader) ([]model.CatalogEntry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("csv header has no name column")
	}
	field := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var entries []model.CatalogEntry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		e := model.CatalogEntry{
			OfficialName: field(rec, "name"),
			ImageRef:     field(rec, "image"),
			Rarity:       field(rec, "rarity"),
		}
		if e.OfficialName == "" {
			continue
		}
		for _, a := range strings.Split(field(rec, "aliases"), "|") {
			if a = strings.TrimSpace(a); a != "" {
				e.Aliases = append(e.Aliases, a)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func loadDir(dir string) (*Catalog, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog directory: %w", err)
	}
	var entries []model.CatalogEntry
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name()))
		if !imageExtensions[ext] {
			continue
		}
		entries = append(entries, model.CatalogEntry{
			OfficialName: strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
			ImageRef:     filepath.Join(dir, f.Name()),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].OfficialName < entries[j].OfficialName })
	return New(entries)
}

func isDir(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

func resolveImage(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(base, ref)
}
