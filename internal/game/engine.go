// Package game applies catch, give, view and list operations to the
// persistent inventory record.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/command"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
	"pronto-ballbot/internal/poller"
	"pronto-ballbot/internal/repository"
)

const (
	SpawnCaption  = "A new ball spawned!"
	escapeMessage = "The ball got away!"
)

// Catalog resolves item names.
type Catalog interface {
	Resolve(name string) (model.CatalogEntry, bool)
	Canonical(name string) string
	Random(rng *rand.Rand) model.CatalogEntry
}

// Announcer posts messages to the game channel.
type Announcer interface {
	Publish(ctx context.Context, filePath, caption string) (model.ID, error)
	Send(ctx context.Context, text string) (model.ID, error)
}

// Waiter blocks until a channel message satisfies match.
type Waiter interface {
	Await(ctx context.Context, match func(model.InboundMessage) bool, timeout time.Duration) (model.InboundMessage, error)
}

// CatchResult describes a completed spawn.
type CatchResult struct {
	Entry       model.CatalogEntry
	CatcherID   model.ID
	CatcherName string
	MessageID   model.ID
}

// Engine owns the inventory record. Every operation loads the whole record,
// mutates it in memory and saves it back; mu serializes those cycles within
// the process.
type Engine struct {
	repo      repository.InventoryRepository
	catalog   Catalog
	announcer Announcer
	logger    *zap.Logger

	mu    sync.Mutex
	rngMu sync.Mutex
	rng   *rand.Rand

	spawning atomic.Bool
}

// NewEngine creates an engine. A nil rng is seeded from the clock.
func NewEngine(repo repository.InventoryRepository, catalog Catalog, announcer Announcer, rng *rand.Rand, logger *zap.Logger) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		repo:      repo,
		catalog:   catalog,
		announcer: announcer,
		rng:       rng,
		logger:    logging.OrNop(logger).Named("game"),
	}
}

// Spawn announces a random item and blocks until someone catches it by name,
// the timeout elapses (zero waits forever) or ctx ends. Only one spawn runs
// at a time.
func (e *Engine) Spawn(ctx context.Context, waiter Waiter, timeout time.Duration) (*CatchResult, error) {
	if !e.spawning.CompareAndSwap(false, true) {
		return nil, ErrSpawnInProgress
	}
	defer e.spawning.Store(false)

	e.rngMu.Lock()
	entry := e.catalog.Random(e.rng)
	e.rngMu.Unlock()

	var err error
	if entry.ImageRef != "" {
		_, err = e.announcer.Publish(ctx, entry.ImageRef, SpawnCaption)
	} else {
		_, err = e.announcer.Send(ctx, SpawnCaption)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to announce spawn of %s: %w", entry.OfficialName, err)
	}
	e.logger.Info("Spawned", zap.String("item", entry.OfficialName), zap.Duration("timeout", timeout))

	names := entry.Names()
	msg, err := waiter.Await(ctx, func(m model.InboundMessage) bool {
		return !m.SenderID.IsZero() && command.IsCatchOf(m.Text, names)
	}, timeout)
	if errors.Is(err, poller.ErrAwaitTimeout) {
		e.logger.Info("Spawn expired", zap.String("item", entry.OfficialName))
		if _, serr := e.announcer.Send(ctx, escapeMessage); serr != nil {
			e.logger.Warn("Failed to announce escape", zap.Error(serr))
		}
		return nil, ErrSpawnExpired
	}
	if err != nil {
		return nil, err
	}

	if err := e.credit(ctx, msg.SenderID.String(), entry.OfficialName); err != nil {
		return nil, err
	}

	catcher := msg.SenderName
	if catcher == "" {
		catcher = msg.SenderID.String()
	}
	id, err := e.announcer.Send(ctx, fmt.Sprintf("Ball caught! %s caught %s.", catcher, entry.OfficialName))
	if err != nil {
		// the item is already credited; a lost announcement is not a failed catch
		e.logger.Warn("Failed to announce catch", zap.Error(err))
	}
	e.logger.Info("Caught",
		zap.String("item", entry.OfficialName),
		zap.String("user_id", msg.SenderID.String()))

	return &CatchResult{Entry: entry, CatcherID: msg.SenderID, CatcherName: catcher, MessageID: id}, nil
}

// Give moves one unit of item from giver to receiver. Aliases resolve to the
// official name; names outside the catalog are matched as typed.
func (e *Engine) Give(ctx context.Context, item, giverID, receiverID string) error {
	name := e.catalog.Canonical(item)

	e.mu.Lock()
	defer e.mu.Unlock()

	inv, err := e.load(ctx)
	if err != nil {
		return err
	}
	owned := inv[giverID]
	idx := -1
	for i, it := range owned {
		if it == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &NotOwnedError{UserID: giverID, Item: name}
	}

	inv[giverID] = append(owned[:idx:idx], owned[idx+1:]...)
	inv[receiverID] = append(inv[receiverID], name)

	if err := e.repo.Save(ctx, inv); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}
	e.logger.Info("Gave",
		zap.String("item", name),
		zap.String("from", giverID),
		zap.String("to", receiverID))
	return nil
}

// View returns the catalog entry for nameOrAlias if the user owns it.
func (e *Engine) View(ctx context.Context, nameOrAlias, userID string) (model.CatalogEntry, error) {
	entry, ok := e.catalog.Resolve(nameOrAlias)
	if !ok {
		return model.CatalogEntry{}, &UnknownItemError{Name: strings.TrimSpace(nameOrAlias)}
	}

	e.mu.Lock()
	inv := e.read(ctx)
	e.mu.Unlock()

	if inv.Count(userID, entry.OfficialName) == 0 {
		return model.CatalogEntry{}, &NotOwnedError{UserID: userID, Item: entry.OfficialName}
	}
	return entry, nil
}

// List returns the user's items grouped by name in order of first acquisition.
func (e *Engine) List(ctx context.Context, userID string) ([]model.ItemCount, error) {
	e.mu.Lock()
	inv := e.read(ctx)
	e.mu.Unlock()

	return groupItems(inv[userID]), nil
}

func (e *Engine) credit(ctx context.Context, userID, item string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	inv, err := e.load(ctx)
	if err != nil {
		return err
	}
	inv[userID] = append(inv[userID], item)
	if err := e.repo.Save(ctx, inv); err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}
	return nil
}

// load reads the record before a write. A corrupt record reads as empty;
// any other failure aborts the write so the stored record survives.
func (e *Engine) load(ctx context.Context) (model.Inventories, error) {
	inv, err := e.repo.Load(ctx)
	if errors.Is(err, repository.ErrCorrupt) {
		e.logger.Warn("Inventory record is corrupt, starting empty", zap.Error(err))
		return model.Inventories{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	if inv == nil {
		return model.Inventories{}, nil
	}
	return inv, nil
}

// read is load for queries: every failure reads as an empty record.
func (e *Engine) read(ctx context.Context) model.Inventories {
	inv, err := e.load(ctx)
	if err != nil {
		e.logger.Warn("Failed to load inventory, reading as empty", zap.Error(err))
		return model.Inventories{}
	}
	return inv
}

func groupItems(items []string) []model.ItemCount {
	out := []model.ItemCount{}
	pos := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := pos[it]; ok {
			out[i].Count++
			continue
		}
		pos[it] = len(out)
		out = append(out, model.ItemCount{Name: it, Count: 1})
	}
	return out
}
