package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pronto-ballbot/internal/catalog"
	"pronto-ballbot/internal/model"
	"pronto-ballbot/internal/poller"
	"pronto-ballbot/internal/repository"
)

type memRepo struct {
	mu      sync.Mutex
	inv     model.Inventories
	loadErr error
	saveErr error
	saves   int

	// failNext fails the next Load only.
	failNext error
}

func (r *memRepo) Load(ctx context.Context) (model.Inventories, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return nil, err
	}
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return r.inv.Clone(), nil
}

func (r *memRepo) Save(ctx context.Context, inv model.Inventories) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.inv = inv.Clone()
	return nil
}

func (r *memRepo) GetStats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"backend": "memory"}, nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) snapshot() model.Inventories {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inv.Clone()
}

type announcement struct {
	path string
	text string
}

type fakeAnnouncer struct {
	mu         sync.Mutex
	sent       []announcement
	publishErr error
}

func (a *fakeAnnouncer) Publish(ctx context.Context, path, caption string) (model.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.publishErr != nil {
		return "", a.publishErr
	}
	a.sent = append(a.sent, announcement{path: path, text: caption})
	return "m1", nil
}

func (a *fakeAnnouncer) Send(ctx context.Context, text string) (model.ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, announcement{text: text})
	return "m2", nil
}

// scriptedWaiter offers each message to match in turn.
type scriptedWaiter struct {
	msgs    []model.InboundMessage
	offered int
}

func (w *scriptedWaiter) Await(ctx context.Context, match func(model.InboundMessage) bool, timeout time.Duration) (model.InboundMessage, error) {
	for _, m := range w.msgs {
		w.offered++
		if match(m) {
			return m, nil
		}
	}
	return model.InboundMessage{}, poller.ErrAwaitTimeout
}

func gondorCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	c, err := catalog.New([]model.CatalogEntry{
		{OfficialName: "Gondor", ImageRef: "/img/gondor.png", Aliases: []string{"minas tirith", "white city"}},
	})
	require.NoError(t, err)
	return catalog.NewStatic(c)
}

func newEngine(t *testing.T, inv model.Inventories) (*Engine, *memRepo, *fakeAnnouncer) {
	t.Helper()
	if inv == nil {
		inv = model.Inventories{}
	}
	repo := &memRepo{inv: inv}
	ann := &fakeAnnouncer{}
	return NewEngine(repo, gondorCatalog(t), ann, rand.New(rand.NewSource(1)), nil), repo, ann
}

func TestGondorScenario(t *testing.T) {
	e, repo, ann := newEngine(t, nil)
	ctx := context.Background()

	_, err := e.View(ctx, "white city", "U")
	var notOwned *NotOwnedError
	require.ErrorAs(t, err, &notOwned)
	assert.Equal(t, "Gondor", notOwned.Item)

	w := &scriptedWaiter{msgs: []model.InboundMessage{
		{ID: "2", Text: "!catch WHITE CITY", SenderID: "U", SenderName: "Uma"},
	}}
	res, err := e.Spawn(ctx, w, 0)
	require.NoError(t, err)
	assert.Equal(t, "Gondor", res.Entry.OfficialName)
	assert.Equal(t, 1, repo.snapshot().Count("U", "Gondor"))

	entry, err := e.View(ctx, "minas tirith", "U")
	require.NoError(t, err)
	assert.Equal(t, "/img/gondor.png", entry.ImageRef)

	require.Len(t, ann.sent, 2)
	assert.Equal(t, announcement{path: "/img/gondor.png", text: SpawnCaption}, ann.sent[0])
	assert.Contains(t, ann.sent[1].text, "Ball caught")
	assert.Contains(t, ann.sent[1].text, "Uma")
}

func TestViewAliasAndNameAgree(t *testing.T) {
	for _, owned := range []bool{false, true} {
		inv := model.Inventories{}
		if owned {
			inv["U"] = []string{"Gondor"}
		}
		e, _, _ := newEngine(t, inv)

		var results []error
		for _, name := range []string{"Gondor", "gondor", "minas tirith", "White City"} {
			_, err := e.View(context.Background(), name, "U")
			results = append(results, err)
		}
		for _, err := range results[1:] {
			assert.Equal(t, results[0] == nil, err == nil)
		}
	}
}

func TestViewUnknownItem(t *testing.T) {
	e, _, _ := newEngine(t, model.Inventories{"U": {"Gondor"}})
	_, err := e.View(context.Background(), "Mordor", "U")
	var unknown *UnknownItemError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Mordor", unknown.Name)
	assert.True(t, IsUserFacing(err))
}

func TestGiveMovesExactlyOneUnit(t *testing.T) {
	e, repo, _ := newEngine(t, model.Inventories{
		"A": {"Gondor", "Rohan", "Gondor"},
		"B": {"Rohan"},
	})
	before := repo.snapshot()

	require.NoError(t, e.Give(context.Background(), "minas tirith", "A", "B"))

	after := repo.snapshot()
	assert.Equal(t, before.Count("A", "Gondor")-1, after.Count("A", "Gondor"))
	assert.Equal(t, before.Count("B", "Gondor")+1, after.Count("B", "Gondor"))
	assert.Equal(t, before.Total(), after.Total())
	assert.Equal(t, 1, repo.saves)
}

func TestGiveNotOwnedLeavesRecordUnchanged(t *testing.T) {
	start := model.Inventories{"A": {"Rohan"}, "B": {"Gondor"}}
	e, repo, _ := newEngine(t, start)

	err := e.Give(context.Background(), "Gondor", "A", "B")
	var notOwned *NotOwnedError
	require.ErrorAs(t, err, &notOwned)
	assert.Equal(t, "A", notOwned.UserID)

	if diff := cmp.Diff(start, repo.snapshot()); diff != "" {
		t.Fatalf("inventory changed (-want +got):\n%s", diff)
	}
	assert.Zero(t, repo.saves)
}

func TestGiveUnknownNameMatchedAsTyped(t *testing.T) {
	e, repo, _ := newEngine(t, model.Inventories{"A": {"Old Relic"}})
	require.NoError(t, e.Give(context.Background(), "Old Relic", "A", "B"))
	assert.Equal(t, 1, repo.snapshot().Count("B", "Old Relic"))
}

func TestGiveToSelfKeepsCount(t *testing.T) {
	e, repo, _ := newEngine(t, model.Inventories{"A": {"Gondor"}})
	require.NoError(t, e.Give(context.Background(), "Gondor", "A", "A"))
	assert.Equal(t, 1, repo.snapshot().Count("A", "Gondor"))
}

func TestGiveSaveFailure(t *testing.T) {
	e, repo, _ := newEngine(t, model.Inventories{"A": {"Gondor"}})
	repo.saveErr = errors.New("disk full")
	err := e.Give(context.Background(), "Gondor", "A", "B")
	assert.ErrorIs(t, err, repo.saveErr)
	assert.False(t, IsUserFacing(err))
}

func TestListGroupsInFirstOccurrenceOrder(t *testing.T) {
	e, _, _ := newEngine(t, model.Inventories{"U": {"Rohan", "Gondor", "Rohan", "Mordor", "Gondor", "Rohan"}})

	got, err := e.List(context.Background(), "U")
	require.NoError(t, err)
	want := []model.ItemCount{{Name: "Rohan", Count: 3}, {Name: "Gondor", Count: 2}, {Name: "Mordor", Count: 1}}
	assert.Equal(t, want, got)

	got, err = e.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLoadFailureReadsAsEmpty(t *testing.T) {
	e, repo, _ := newEngine(t, model.Inventories{"U": {"Gondor"}})
	repo.loadErr = errors.New("corrupt")

	got, err := e.List(context.Background(), "U")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.View(context.Background(), "Gondor", "U")
	var notOwned *NotOwnedError
	assert.ErrorAs(t, err, &notOwned)
}

func TestTransientLoadErrorAbortsWrites(t *testing.T) {
	start := model.Inventories{"alice": {"Gondor", "Gondor"}, "bob": {"Gondor"}}
	e, repo, _ := newEngine(t, start.Clone())
	ctx := context.Background()

	repo.failNext = errors.New("database is locked")
	err := e.credit(ctx, "carol", "Gondor")
	require.Error(t, err)
	assert.Zero(t, repo.saves)
	if diff := cmp.Diff(start, repo.snapshot()); diff != "" {
		t.Fatalf("inventory changed (-want +got):\n%s", diff)
	}

	repo.failNext = errors.New("connection reset")
	err = e.Give(ctx, "Gondor", "alice", "bob")
	require.Error(t, err)
	assert.False(t, IsUserFacing(err))
	assert.Zero(t, repo.saves)

	require.NoError(t, e.credit(ctx, "carol", "Gondor"))
	after := repo.snapshot()
	assert.Equal(t, 2, after.Count("alice", "Gondor"))
	assert.Equal(t, 1, after.Count("bob", "Gondor"))
	assert.Equal(t, 1, after.Count("carol", "Gondor"))
}

func TestSpawnTransientLoadErrorKeepsRecord(t *testing.T) {
	start := model.Inventories{"alice": {"Gondor"}}
	e, repo, _ := newEngine(t, start.Clone())
	repo.failNext = errors.New("database is locked")

	w := &scriptedWaiter{msgs: []model.InboundMessage{{ID: "1", Text: "!catch gondor", SenderID: "U"}}}
	_, err := e.Spawn(context.Background(), w, 0)
	require.Error(t, err)
	assert.Equal(t, start, repo.snapshot())
}

func TestCorruptRecordStartsOver(t *testing.T) {
	e, repo, _ := newEngine(t, model.Inventories{"alice": {"Gondor"}})
	repo.failNext = fmt.Errorf("failed to parse inventory: %w", repository.ErrCorrupt)

	require.NoError(t, e.credit(context.Background(), "carol", "Gondor"))
	assert.Equal(t, model.Inventories{"carol": {"Gondor"}}, repo.snapshot())
}

func TestSpawnIgnoresWrongPhrases(t *testing.T) {
	e, repo, _ := newEngine(t, nil)
	w := &scriptedWaiter{msgs: []model.InboundMessage{
		{ID: "1", Text: "!catch rohan", SenderID: "X"},
		{ID: "2", Text: "gondor", SenderID: "X"},
		{ID: "3", Text: "!catch gondor", SenderID: "U"},
		{ID: "4", Text: "!catch gondor", SenderID: "X"},
	}}

	res, err := e.Spawn(context.Background(), w, 0)
	require.NoError(t, err)
	assert.Equal(t, model.ID("U"), res.CatcherID)
	assert.Equal(t, 3, w.offered)

	inv := repo.snapshot()
	assert.Equal(t, 1, inv.Count("U", "Gondor"))
	assert.Zero(t, inv.Count("X", "Gondor"))
}

func TestCatchAndViewAgreeOnSpacing(t *testing.T) {
	e, repo, _ := newEngine(t, nil)
	w := &scriptedWaiter{msgs: []model.InboundMessage{{ID: "1", Text: "!catch white  city", SenderID: "u"}}}

	_, err := e.Spawn(context.Background(), w, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.snapshot().Count("u", "Gondor"))

	_, err = e.View(context.Background(), "white  city", "u")
	assert.NoError(t, err)
}

func TestSpawnExpires(t *testing.T) {
	e, repo, ann := newEngine(t, nil)

	_, err := e.Spawn(context.Background(), &scriptedWaiter{}, time.Second)
	assert.ErrorIs(t, err, ErrSpawnExpired)
	assert.Zero(t, repo.saves)
	require.Len(t, ann.sent, 2)
	assert.Equal(t, escapeMessage, ann.sent[1].text)
}

func TestSpawnAnnouncementFailureAborts(t *testing.T) {
	e, _, ann := newEngine(t, nil)
	ann.publishErr = errors.New("publish exhausted")
	w := &scriptedWaiter{msgs: []model.InboundMessage{{ID: "1", Text: "!catch gondor", SenderID: "U"}}}

	_, err := e.Spawn(context.Background(), w, 0)
	assert.ErrorIs(t, err, ann.publishErr)
	assert.Zero(t, w.offered)
}

type blockingWaiter struct {
	entered chan struct{}
}

func (w *blockingWaiter) Await(ctx context.Context, match func(model.InboundMessage) bool, timeout time.Duration) (model.InboundMessage, error) {
	close(w.entered)
	<-ctx.Done()
	return model.InboundMessage{}, ctx.Err()
}

func TestSpawnOneAtATime(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	w := &blockingWaiter{entered: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		_, err := e.Spawn(ctx, w, 0)
		done <- err
	}()
	<-w.entered

	_, err := e.Spawn(context.Background(), &scriptedWaiter{}, 0)
	assert.ErrorIs(t, err, ErrSpawnInProgress)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
