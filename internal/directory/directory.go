// Package directory maps chat member names to user ids.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
)

// ErrUnknownMember is returned when a name matches no known member.
var ErrUnknownMember = errors.New("directory: unknown member")

// Member is one known chat user.
type Member struct {
	ID       model.ID `json:"id"`
	FullName string   `json:"fullname"`
}

// membershipExport is the shape of the bubble membership export.
type membershipExport []struct {
	Memberships []struct {
		User Member `json:"user"`
	} `json:"memberships"`
}

// Directory is a concurrency-safe name to id index. Names are matched
// case-insensitively after collapsing whitespace.
type Directory struct {
	mu     sync.RWMutex
	byName map[string]Member
	byID   map[model.ID]Member
	logger *zap.Logger
}

// New returns an empty directory.
func New(logger *zap.Logger) *Directory {
	return &Directory{
		byName: make(map[string]Member),
		byID:   make(map[model.ID]Member),
		logger: logging.OrNop(logger).Named("directory"),
	}
}

// Load reads a membership export from path. A missing file yields an empty
// directory, since names are also learned from polled messages.
func Load(path string, logger *zap.Logger) (*Directory, error) {
	d := New(logger)
	if path == "" {
		return d, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		d.logger.Warn("Membership export not found", zap.String("path", path))
		return d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read members: %w", err)
	}

	var export membershipExport
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("failed to parse members %s: %w", path, err)
	}
	n := 0
	for _, wrapper := range export {
		for _, m := range wrapper.Memberships {
			if d.add(m.User) {
				n++
			}
		}
	}
	d.logger.Info("Loaded", zap.String("path", path), zap.Int("members", n))
	return d, nil
}

// LookupID returns the id of the member whose full name equals name.
func (d *Directory) LookupID(name string) (model.ID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.byName[normalize(name)]
	return m.ID, ok
}

// Name returns the known full name for id.
func (d *Directory) Name(id model.ID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.byID[id]
	return m.FullName, ok
}

// Observe records a sender seen in the channel. Later observations of the
// same id replace its name.
func (d *Directory) Observe(id model.ID, name string) {
	if id.IsZero() || strings.TrimSpace(name) == "" {
		return
	}
	d.mu.RLock()
	prev, known := d.byID[id]
	d.mu.RUnlock()
	if known && prev.FullName == name {
		return
	}
	d.add(Member{ID: id, FullName: name})
}

// Resolve turns a give target into a user id. A purely numeric target must be
// a known member id; anything else must match a known full name.
func (d *Directory) Resolve(target string) (model.ID, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrUnknownMember
	}
	if isNumeric(target) {
		if _, ok := d.Name(model.ID(target)); ok {
			return model.ID(target), nil
		}
		return "", fmt.Errorf("%w: no member with id %s", ErrUnknownMember, target)
	}
	if id, ok := d.LookupID(target); ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownMember, target)
}

// Members returns all known members sorted by name.
func (d *Directory) Members() []Member {
	d.mu.RLock()
	out := make([]Member, 0, len(d.byID))
	for _, m := range d.byID {
		out = append(out, m)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

func (d *Directory) add(m Member) bool {
	m.FullName = strings.TrimSpace(m.FullName)
	if m.ID.IsZero() || m.FullName == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.byID[m.ID]; ok {
		delete(d.byName, normalize(prev.FullName))
	}
	d.byID[m.ID] = m
	d.byName[normalize(m.FullName)] = m
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
