// Package pronto is a thin client for the Pronto group-messaging HTTP API.
// It performs no retries of its own; callers own the retry policy.
package pronto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pronto-ballbot/internal/config"
	"pronto-ballbot/internal/logging"
	"pronto-ballbot/internal/model"
)

const maxErrorBody = 4 << 10

// Client issues authenticated requests against one Pronto deployment.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *zap.Logger
}

// NewClient creates a client from the Pronto configuration. A nil httpClient
// gets a default client using the configured timeout.
func NewClient(cfg config.ProntoConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		logger:  logging.OrNop(logger).Named("pronto"),
	}
}

type uploadResponse struct {
	Data struct {
		Key      string `json:"key"`
		Name     string `json:"name"`
		Filesize int64  `json:"filesize"`
		MimeType string `json:"mimetype"`
	} `json:"data"`
}

// Upload sends raw file bytes and returns a reference holding the original key.
func (c *Client) Upload(ctx context.Context, r io.Reader, size int64, filename, mimeHint string) (*model.AssetReference, error) {
	if mimeHint == "" {
		mimeHint = "application/octet-stream"
	}
	q := url.Values{}
	q.Set("filename", filename)
	q.Set("normalize_image", "true")

	req, err := c.newRequest(ctx, http.MethodPut, "/api/files?"+q.Encode(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mimeHint)
	if size >= 0 {
		req.ContentLength = size
	}

	var out uploadResponse
	if err := c.do(req, "upload", &out); err != nil {
		return nil, err
	}
	if out.Data.Key == "" {
		return nil, fmt.Errorf("pronto upload: response missing file key")
	}

	c.logger.Info("Uploaded file", zap.String("filename", filename), zap.String("key", out.Data.Key))
	return &model.AssetReference{
		OriginalKey:   out.Data.Key,
		MimeType:      mimeHint,
		FilesizeBytes: size,
		DisplayName:   filename,
	}, nil
}

type normalizedResponse struct {
	Data struct {
		Normalized *model.NormalizedFile `json:"normalized"`
	} `json:"data"`
}

// QueryNormalization asks whether a normalized variant of the file exists under
// the given preset. ready is false while the server is still processing.
func (c *Client) QueryNormalization(ctx context.Context, originalKey string, preset model.MediaKind) (*model.NormalizedFile, bool, error) {
	path := "/api/clients/files/" + url.PathEscape(originalKey) + "/normalized?preset=" + url.QueryEscape(string(preset))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, false, err
	}

	var out normalizedResponse
	if err := c.do(req, "normalized", &out); err != nil {
		return nil, false, err
	}
	if out.Data.Normalized == nil || out.Data.Normalized.Key == "" {
		return nil, false, nil
	}
	return out.Data.Normalized, true, nil
}

type messageMedia struct {
	MediaType model.MediaKind `json:"mediatype"`
	Title     string          `json:"title"`
	Filesize  int64           `json:"filesize"`
	MimeType  string          `json:"mimetype"`
	Width     *int            `json:"width"`
	Height    *int            `json:"height"`
	UUID      string          `json:"uuid"`
}

type createMessageRequest struct {
	UUID         string         `json:"uuid"`
	BubbleID     model.ID       `json:"bubble_id"`
	Message      string         `json:"message"`
	MessageMedia []messageMedia `json:"messagemedia,omitempty"`
}

type createMessageResponse struct {
	Message struct {
		ID model.ID `json:"id"`
	} `json:"message"`
}

// PostMessage creates a chat message. A 400 response flagging the attachment
// key as unknown fails with *NotReadyError.
func (c *Client) PostMessage(ctx context.Context, msg model.OutboundMessage) (model.ID, error) {
	payload := createMessageRequest{
		UUID:     msg.CorrelationID,
		BubbleID: model.ID(msg.ChannelID),
		Message:  msg.Text,
	}
	if msg.Media != nil {
		payload.MessageMedia = []messageMedia{{
			MediaType: msg.MediaKind,
			Title:     msg.Media.DisplayName,
			Filesize:  msg.Media.FilesizeBytes,
			MimeType:  msg.Media.MimeType,
			Width:     msg.Media.Width,
			Height:    msg.Media.Height,
			UUID:      msg.Media.NormalizedKey,
		}}
	}

	req, err := c.newJSONRequest(ctx, "/api/v1/message.create", payload)
	if err != nil {
		return "", err
	}

	var out createMessageResponse
	if err := c.do(req, "message.create", &out); err != nil {
		var te *TransportError
		if msg.Media != nil && errors.As(err, &te) &&
			te.StatusCode == http.StatusBadRequest && strings.Contains(te.Body, invalidAttachmentCode) {
			return "", &NotReadyError{Key: msg.Media.NormalizedKey, Body: te.Body}
		}
		return "", err
	}
	if out.Message.ID.IsZero() {
		return "", fmt.Errorf("pronto message.create: response missing message id")
	}
	return out.Message.ID, nil
}

type historyRequest struct {
	BubbleID model.ID `json:"bubble_id"`
}

type historyResponse struct {
	Messages []struct {
		ID      model.ID `json:"id"`
		Message string   `json:"message"`
		User    struct {
			ID        model.ID `json:"id"`
			FirstName string   `json:"firstname"`
			LastName  string   `json:"lastname"`
		} `json:"user"`
	} `json:"messages"`
}

// FetchLatestMessage returns the most recent message of a channel, or nil when
// the channel has no messages.
func (c *Client) FetchLatestMessage(ctx context.Context, channelID string) (*model.InboundMessage, error) {
	req, err := c.newJSONRequest(ctx, "/api/v1/bubble.history", historyRequest{BubbleID: model.ID(channelID)})
	if err != nil {
		return nil, err
	}

	var out historyResponse
	if err := c.do(req, "bubble.history", &out); err != nil {
		return nil, err
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	m := out.Messages[0]
	return &model.InboundMessage{
		ID:         m.ID,
		Text:       m.Message,
		SenderID:   m.User.ID,
		SenderName: strings.TrimSpace(m.User.FirstName + " " + m.User.LastName),
	}, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends the request and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pronto %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pronto %s: failed to decode response: %w", op, err)
	}
	return nil
}
