// Package poller watches a channel for new messages and routes commands to a
// handler, one message at a time.
package poller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/command"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
	"pronto-ballbot/internal/pronto"
)

var (
	// ErrAwaitTimeout is returned by Await when no message matched in time.
	ErrAwaitTimeout = errors.New("poller: wait timed out")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("poller: handler panicked")
)

// Fetcher returns the newest message of a channel, or nil when it is empty.
type Fetcher interface {
	FetchLatestMessage(ctx context.Context, channelID string) (*model.InboundMessage, error)
}

// Handler processes one parsed command.
type Handler interface {
	Handle(ctx context.Context, cmd command.Command, msg model.InboundMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd command.Command, msg model.InboundMessage) error

func (f HandlerFunc) Handle(ctx context.Context, cmd command.Command, msg model.InboundMessage) error {
	return f(ctx, cmd, msg)
}

// State is the dispatcher's position in its two-state machine.
type State int

const (
	StateIdle State = iota
	StateDispatching
)

func (s State) String() string {
	if s == StateDispatching {
		return "DISPATCHING"
	}
	return "IDLE"
}

// Stats is a snapshot of dispatcher activity.
type Stats struct {
	State         string    `json:"state"`
	Cursor        string    `json:"cursor"`
	Polls         int64     `json:"polls"`
	FetchErrors   int64     `json:"fetch_errors"`
	Observed      int64     `json:"observed"`
	Dispatched    int64     `json:"dispatched"`
	HandlerErrors int64     `json:"handler_errors"`
	Awaiting      bool      `json:"awaiting"`
	LastPollAt    time.Time `json:"last_poll_at"`
}

// Dispatcher polls one channel and routes every new message to its handler.
type Dispatcher struct {
	fetcher   Fetcher
	channelID string
	handler   Handler
	cursor    *Cursor
	interval  time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	state State
	stats Stats
}

// NewDispatcher creates a dispatcher. A nil cursor starts from an empty
// in-memory one; a non-positive interval defaults to one second.
func NewDispatcher(fetcher Fetcher, channelID string, handler Handler, cursor *Cursor, interval time.Duration, logger *zap.Logger) *Dispatcher {
	logger = logging.OrNop(logger)
	if cursor == nil {
		cursor = NewCursor(nil, logger)
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{
		fetcher:   fetcher,
		channelID: channelID,
		handler:   handler,
		cursor:    cursor,
		interval:  interval,
		logger:    logger.Named("dispatcher"),
	}
}

// SetHandler replaces the handler. It must be called before Run.
func (d *Dispatcher) SetHandler(h Handler) {
	d.handler = h
}

// Cursor exposes the dispatcher's cursor.
func (d *Dispatcher) Cursor() *Cursor {
	return d.cursor
}

// Run polls until ctx is cancelled. The next fetch starts only after the
// current handler has returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Started", zap.String("channel", d.channelID), zap.Duration("interval", d.interval))

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.PollOnce(ctx); err != nil && ctx.Err() == nil {
			switch code := pronto.StatusCode(err); code {
			case http.StatusUnauthorized, http.StatusForbidden:
				d.logger.Error("Poll rejected, check PRONTO_TOKEN", zap.Int("status", code), zap.Error(err))
			default:
				d.logger.Warn("Poll failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			d.logger.Info("Stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce performs one fetch and dispatches the message if it is new. It
// reports whether a new message was observed. An empty channel or a fetch
// error leaves the cursor untouched; a handler error is logged and does not
// fail the poll.
func (d *Dispatcher) PollOnce(ctx context.Context) (bool, error) {
	msg, err := d.fetchNew(ctx)
	if err != nil || msg == nil {
		return false, err
	}

	// recorded before dispatch so a handler that polls through Await
	// continues from this message instead of seeing it again
	d.cursor.Observe(ctx, msg.ID)

	cmd := command.Parse(msg.Text)
	if cmd.Kind == command.Unknown || d.handler == nil {
		return true, nil
	}

	d.setState(StateDispatching)
	d.logger.Debug("Dispatching",
		zap.String("message_id", msg.ID.String()),
		zap.Stringer("command", cmd.Kind),
		zap.String("sender", msg.SenderName))

	herr := d.safeHandle(ctx, cmd, *msg)

	d.mu.Lock()
	d.state = StateIdle
	d.stats.Dispatched++
	if herr != nil {
		d.stats.HandlerErrors++
	}
	d.mu.Unlock()

	if herr != nil {
		d.logger.Error("Handler failed",
			zap.String("message_id", msg.ID.String()),
			zap.Stringer("command", cmd.Kind),
			zap.Error(herr))
	}
	return true, nil
}

// safeHandle runs the handler and turns a panic into ErrHandlerPanic.
func (d *Dispatcher) safeHandle(ctx context.Context, cmd command.Command, msg model.InboundMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked",
				zap.String("message_id", msg.ID.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return d.handler.Handle(ctx, cmd, msg)
}

// Await polls the channel with the shared cursor until a new message
// satisfies match, timeout elapses or ctx is cancelled. A timeout of zero
// waits indefinitely. Messages that do not match are consumed without being
// dispatched.
func (d *Dispatcher) Await(ctx context.Context, match func(model.InboundMessage) bool, timeout time.Duration) (model.InboundMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	d.setAwaiting(true)
	defer d.setAwaiting(false)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		msg, err := d.fetchNew(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Warn("Poll failed while waiting", zap.Error(err))
		}
		if msg != nil {
			d.cursor.Observe(ctx, msg.ID)
			if match(*msg) {
				return *msg, nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return model.InboundMessage{}, ErrAwaitTimeout
			}
			return model.InboundMessage{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	state := d.State()
	d.mu.Lock()
	s := d.stats
	d.mu.Unlock()
	s.State = state.String()
	s.Cursor = d.cursor.Last().String()
	return s
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// fetchNew fetches the newest message and returns it only when the cursor has
// not seen it. It does not advance the cursor.
func (d *Dispatcher) fetchNew(ctx context.Context) (*model.InboundMessage, error) {
	msg, err := d.fetcher.FetchLatestMessage(ctx, d.channelID)

	d.mu.Lock()
	d.stats.Polls++
	d.stats.LastPollAt = time.Now()
	if err != nil {
		d.stats.FetchErrors++
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if msg == nil || !d.cursor.IsNew(msg.ID) {
		return nil, nil
	}

	d.mu.Lock()
	d.stats.Observed++
	d.mu.Unlock()
	return msg, nil
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dispatcher) setAwaiting(v bool) {
	d.mu.Lock()
	d.stats.Awaiting = v
	d.mu.Unlock()
}
