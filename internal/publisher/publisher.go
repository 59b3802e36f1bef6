// Package publisher posts text and media messages, absorbing the delay between
// a file upload and the server finishing its normalization.
//
// Publishing is two-tier: a soft readiness wait after upload that only logs
// when it runs out, and a hard retry around message creation that resends the
// same correlation id whenever the server rejects the attachment key as not
// ready yet.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/cache"
	"pronto-ballbot/internal/config"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
	"pronto-ballbot/internal/pronto"
	"pronto-ballbot/pkg/uid"
)

// Transport is the subset of the Pronto client the publisher needs.
type Transport interface {
	Upload(ctx context.Context, r io.Reader, size int64, filename, mimeHint string) (*model.AssetReference, error)
	QueryNormalization(ctx context.Context, originalKey string, preset model.MediaKind) (*model.NormalizedFile, bool, error)
	PostMessage(ctx context.Context, msg model.OutboundMessage) (model.ID, error)
}

// Options holds the retry budgets of the pipeline.
type Options struct {
	ReadyAttempts      int
	ReadyDelay         time.Duration
	RetryReadyAttempts int
	RetryReadyDelay    time.Duration
	PostAttempts       int
}

// DefaultOptions returns the budgets the service is known to tolerate.
func DefaultOptions() Options {
	return Options{
		ReadyAttempts:      6,
		ReadyDelay:         500 * time.Millisecond,
		RetryReadyAttempts: 3,
		RetryReadyDelay:    700 * time.Millisecond,
		PostAttempts:       3,
	}
}

// OptionsFromConfig converts the publish configuration section.
func OptionsFromConfig(cfg config.PublishConfig) Options {
	return Options{
		ReadyAttempts:      cfg.ReadyAttempts,
		ReadyDelay:         cfg.ReadyDelay,
		RetryReadyAttempts: cfg.RetryReadyAttempts,
		RetryReadyDelay:    cfg.RetryReadyDelay,
		PostAttempts:       cfg.PostAttempts,
	}
}

// Publisher posts messages to a single channel.
type Publisher struct {
	transport Transport
	channelID string
	opts      Options
	logger    *zap.Logger
	newID     func() string

	assets   cache.Cache
	assetTTL time.Duration
}

// New creates a publisher. Non-positive attempt counts fall back to the defaults.
func New(transport Transport, channelID string, opts Options, logger *zap.Logger) *Publisher {
	def := DefaultOptions()
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = def.ReadyAttempts
	}
	if opts.RetryReadyAttempts <= 0 {
		opts.RetryReadyAttempts = def.RetryReadyAttempts
	}
	if opts.PostAttempts <= 0 {
		opts.PostAttempts = def.PostAttempts
	}
	return &Publisher{
		transport: transport,
		channelID: channelID,
		opts:      opts,
		logger:    logging.OrNop(logger).Named("publisher"),
		newID:     uid.New,
	}
}

// MessageRequest describes one logical message. Asset is nil for text-only messages.
type MessageRequest struct {
	Text  string
	Asset *model.AssetReference
	Kind  model.MediaKind
}

// Publish uploads the file at filePath, waits for normalization and posts it
// with caption as the message text. With an asset cache set, an unchanged
// file reuses its earlier normalized upload.
func (p *Publisher) Publish(ctx context.Context, filePath, caption string) (model.ID, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open media: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat media: %w", err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("media path is a directory: %s", filePath)
	}

	mimeType := GuessMimeType(filePath)
	kind := KindForMime(mimeType)

	upload := func() (*model.AssetReference, error) {
		return p.uploadNormalized(ctx, f, st.Size(), filepath.Base(filePath), mimeType, kind)
	}

	var ref *model.AssetReference
	if p.assets != nil {
		ref, err = p.cachedUpload(ctx, assetKey(filePath, st), upload)
	} else {
		ref, err = upload()
	}
	if err != nil {
		return "", err
	}

	return p.CreateMessage(ctx, MessageRequest{Text: caption, Asset: ref, Kind: kind})
}

// SetAssetCache makes Publish remember normalized uploads for ttl, keyed by
// path, size and modification time. A nil cache or non-positive ttl turns
// reuse off.
func (p *Publisher) SetAssetCache(c cache.Cache, ttl time.Duration) {
	if c == nil || ttl <= 0 {
		p.assets, p.assetTTL = nil, 0
		return
	}
	p.assets, p.assetTTL = c, ttl
}

func (p *Publisher) uploadNormalized(ctx context.Context, r io.Reader, size int64, filename, mimeType string, kind model.MediaKind) (*model.AssetReference, error) {
	ref, err := p.transport.Upload(ctx, r, size, filename, mimeType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	normalized, ready, err := p.WaitUntilReady(ctx, ref.OriginalKey, kind, p.opts.ReadyAttempts, p.opts.ReadyDelay)
	if err != nil {
		return nil, err
	}
	if !ready {
		normalized, ready, err = p.transport.QueryNormalization(ctx, ref.OriginalKey, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch normalized metadata: %w", err)
		}
	}
	if !ready {
		return nil, &PublishExhaustedError{
			Stage: StageNormalize,
			Last:  &pronto.NotReadyError{Key: ref.OriginalKey},
		}
	}
	ref.ApplyNormalized(normalized)
	return ref, nil
}

// cachedUpload serves a normalized reference from the asset cache or runs
// upload and stores its result. A cache failure falls back to a plain upload.
func (p *Publisher) cachedUpload(ctx context.Context, key string, upload func() (*model.AssetReference, error)) (*model.AssetReference, error) {
	var (
		uploaded  *model.AssetReference
		uploadErr error
	)
	raw, err := p.assets.GetOrSet(ctx, key, p.assetTTL, func() ([]byte, error) {
		uploaded, uploadErr = upload()
		if uploadErr != nil {
			return nil, uploadErr
		}
		return json.Marshal(uploaded)
	})
	if uploadErr != nil {
		return nil, uploadErr
	}
	if err != nil {
		p.logger.Warn("Asset cache unavailable", zap.Error(err))
		if uploaded != nil {
			return uploaded, nil
		}
		return upload()
	}
	if uploaded != nil {
		return uploaded, nil
	}

	var ref model.AssetReference
	if err := json.Unmarshal(raw, &ref); err != nil || !ref.IsNormalized() {
		p.logger.Warn("Discarding unusable cached asset", zap.String("key", key))
		_ = p.assets.Delete(ctx, key)
		return upload()
	}
	p.logger.Debug("Reusing uploaded asset", zap.String("key", ref.NormalizedKey))
	return &ref, nil
}

func assetKey(path string, st os.FileInfo) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("asset:%s:%d:%d", path, st.Size(), st.ModTime().UnixNano())
}

// Send posts a text-only message.
func (p *Publisher) Send(ctx context.Context, text string) (model.ID, error) {
	return p.CreateMessage(ctx, MessageRequest{Text: text})
}

// WaitUntilReady polls the normalization status up to attempts times, sleeping
// delay between polls. Running out of attempts is not an error: the caller
// decides whether an unnormalized file is acceptable.
func (p *Publisher) WaitUntilReady(ctx context.Context, originalKey string, preset model.MediaKind, attempts int, delay time.Duration) (*model.NormalizedFile, bool, error) {
	for attempt := 1; attempt <= attempts; attempt++ {
		n, ready, err := p.transport.QueryNormalization(ctx, originalKey, preset)
		if err != nil {
			return nil, false, fmt.Errorf("failed to query normalization: %w", err)
		}
		if ready {
			p.logger.Info("Normalized", zap.String("key", originalKey), zap.Int("attempt", attempt))
			return n, true, nil
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, false, err
		}
	}
	p.logger.Warn("Normalization incomplete",
		zap.String("key", originalKey), zap.Int("attempts", attempts))
	return nil, false, nil
}

// CreateMessage posts req. Media messages are retried up to PostAttempts times
// while the server reports the attachment as not ready; every attempt carries
// the same correlation id. Text-only messages are posted once.
func (p *Publisher) CreateMessage(ctx context.Context, req MessageRequest) (model.ID, error) {
	msg := model.OutboundMessage{
		CorrelationID: p.newID(),
		ChannelID:     p.channelID,
		Text:          req.Text,
	}

	if req.Asset == nil {
		id, err := p.transport.PostMessage(ctx, msg)
		if err != nil {
			return "", err
		}
		p.logger.Info("Posted", zap.String("message_id", id.String()))
		return id, nil
	}

	if !req.Asset.IsNormalized() {
		return "", ErrNotNormalized
	}
	msg.Media = req.Asset
	msg.MediaKind = req.Kind
	if msg.MediaKind == "" {
		msg.MediaKind = model.MediaPhoto
	}

	var last error
	for attempt := 1; attempt <= p.opts.PostAttempts; attempt++ {
		id, err := p.transport.PostMessage(ctx, msg)
		if err == nil {
			p.logger.Info("Posted",
				zap.String("message_id", id.String()),
				zap.String("correlation_id", msg.CorrelationID),
				zap.Int("attempt", attempt))
			return id, nil
		}
		if !pronto.IsNotReady(err) {
			return "", err
		}
		last = err
		p.logger.Warn("Key not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.opts.PostAttempts),
			zap.String("correlation_id", msg.CorrelationID))
		if attempt == p.opts.PostAttempts {
			break
		}
		if _, _, err := p.WaitUntilReady(ctx, req.Asset.OriginalKey, msg.MediaKind, p.opts.RetryReadyAttempts, p.opts.RetryReadyDelay); err != nil {
			return "", err
		}
	}

	return "", &PublishExhaustedError{
		Stage:         StagePost,
		Attempts:      p.opts.PostAttempts,
		CorrelationID: msg.CorrelationID,
		Last:          last,
	}
}

// mediaTypes covers extensions the platform mime table may lack.
var mediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
}

// GuessMimeType maps a file extension to a media type.
func GuessMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := mediaTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}
	return "application/octet-stream"
}

// KindForMime picks the processing preset for a media type. Unknown types use
// the photo preset.
func KindForMime(mimeType string) model.MediaKind {
	category, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch category {
	case "video":
		return model.MediaVideo
	case "audio":
		return model.MediaAudio
	default:
		return model.MediaPhoto
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err is, or wraps, a PublishExhaustedError.
func IsExhausted(err error) bool {
	var pe *PublishExhaustedError
	return errors.As(err, &pe)
}
