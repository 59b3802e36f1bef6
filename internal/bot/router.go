// Package bot turns parsed chat commands into game operations and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/command"
	"pronto-ballbot/internal/directory"
	"pronto-ballbot/internal/game"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
	"pronto-ballbot/internal/poller"
	"pronto-ballbot/internal/publisher"
)

// Game is the set of engine operations the router drives.
type Game interface {
	Spawn(ctx context.Context, waiter game.Waiter, timeout time.Duration) (*game.CatchResult, error)
	Give(ctx context.Context, item, giverID, receiverID string) error
	View(ctx context.Context, nameOrAlias, userID string) (model.CatalogEntry, error)
	List(ctx context.Context, userID string) ([]model.ItemCount, error)
}

// Members resolves give targets and learns sender names.
type Members interface {
	Observe(id model.ID, name string)
	Resolve(target string) (model.ID, error)
	Name(id model.ID) (string, bool)
}

// Router implements poller.Handler.
type Router struct {
	game         Game
	announcer    game.Announcer
	members      Members
	waiter       game.Waiter
	spawnTimeout time.Duration
	logger       *zap.Logger
}

// Config wires a Router.
type Config struct {
	Game         Game
	Announcer    game.Announcer
	Members      Members
	Waiter       game.Waiter
	SpawnTimeout time.Duration
	Logger       *zap.Logger
}

// New creates a router.
func New(cfg Config) *Router {
	return &Router{
		game:         cfg.Game,
		announcer:    cfg.Announcer,
		members:      cfg.Members,
		waiter:       cfg.Waiter,
		spawnTimeout: cfg.SpawnTimeout,
		logger:       logging.OrNop(cfg.Logger).Named("bot"),
	}
}

var _ poller.Handler = (*Router)(nil)

// Handle runs one command. User mistakes are answered in the channel and
// reported as success; anything else is returned for the dispatcher to log.
func (r *Router) Handle(ctx context.Context, cmd command.Command, msg model.InboundMessage) error {
	if r.members != nil {
		r.members.Observe(msg.SenderID, msg.SenderName)
	}

	var err error
	switch cmd.Kind {
	case command.Ball:
		err = r.handleBall(ctx)
	case command.List:
		err = r.handleList(ctx, msg)
	case command.Give:
		err = r.handleGive(ctx, cmd, msg)
	case command.View:
		err = r.handleView(ctx, cmd, msg)
	case command.Help:
		_, err = r.announcer.Send(ctx, command.Usage)
	case command.Catch:
		// only meaningful while a spawn is waiting, which consumes it directly
		r.logger.Debug("Catch with no ball out", zap.String("sender", msg.SenderName))
	}

	if err != nil && game.IsUserFacing(err) {
		return r.reply(ctx, err.Error())
	}
	if publisher.IsExhausted(err) {
		if rerr := r.reply(ctx, mediaFailedReply); rerr != nil {
			r.logger.Warn("Failed to report media failure", zap.Error(rerr))
		}
	}
	return err
}

const mediaFailedReply = "The image didn't go through, try again in a moment."

func (r *Router) handleBall(ctx context.Context) error {
	_, err := r.game.Spawn(ctx, r.waiter, r.spawnTimeout)
	if errors.Is(err, game.ErrSpawnExpired) {
		// the engine already told the channel
		return nil
	}
	if errors.Is(err, game.ErrSpawnInProgress) {
		return r.reply(ctx, "A ball is already out! Catch it first.")
	}
	return err
}

func (r *Router) handleList(ctx context.Context, msg model.InboundMessage) error {
	items, err := r.game.List(ctx, msg.SenderID.String())
	if err != nil {
		return err
	}
	return r.reply(ctx, FormatInventory(displayName(msg), items))
}

func (r *Router) handleGive(ctx context.Context, cmd command.Command, msg model.InboundMessage) error {
	receiver, err := r.members.Resolve(cmd.Target)
	if errors.Is(err, directory.ErrUnknownMember) {
		return r.reply(ctx, fmt.Sprintf("I don't know who %s is.", cmd.Target))
	}
	if err != nil {
		return err
	}

	if err := r.game.Give(ctx, cmd.Item, msg.SenderID.String(), receiver.String()); err != nil {
		return err
	}
	to := cmd.Target
	if name, ok := r.members.Name(receiver); ok {
		to = name
	}
	return r.reply(ctx, fmt.Sprintf("%s gave %s to %s.", displayName(msg), cmd.Item, to))
}

func (r *Router) handleView(ctx context.Context, cmd command.Command, msg model.InboundMessage) error {
	entry, err := r.game.View(ctx, cmd.Item, msg.SenderID.String())
	if err != nil {
		return err
	}
	caption := entry.OfficialName
	if entry.Rarity != "" {
		caption = fmt.Sprintf("%s (%s)", entry.OfficialName, entry.Rarity)
	}
	if entry.ImageRef == "" {
		return r.reply(ctx, caption)
	}
	_, err = r.announcer.Publish(ctx, entry.ImageRef, caption)
	return err
}

func (r *Router) reply(ctx context.Context, text string) error {
	_, err := r.announcer.Send(ctx, text)
	return err
}

// FormatInventory renders grouped counts for the channel.
func FormatInventory(owner string, items []model.ItemCount) string {
	if len(items) == 0 {
		return fmt.Sprintf("%s has no balls yet.", owner)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s's balls:", owner)
	for _, it := range items {
		fmt.Fprintf(&b, "\n%s x%d", it.Name, it.Count)
	}
	return b.String()
}

func displayName(msg model.InboundMessage) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID.String()
}
