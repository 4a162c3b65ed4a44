// Package telegram wraps the bot HTTP API: the send family, reaction calls,
// and lazy re-resolution of expiring file ids to fresh URLs.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/platform/observability"
)

type Client struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func New(token string, rps float64, logger *zerolog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	if rps <= 0 {
		rps = 1
	}

	return &Client{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// SendText sends a plain text message and returns the normalized message as
// Telegram echoed it back.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (*domain.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	sent, err := c.api.Send(tgbotapi.NewMessage(chatID, text))

	return c.observe(ctx, "sendMessage", sent, err)
}

// Media identifies an upload for the send family: raw bytes with a filename,
// or a URL/file-id Telegram fetches itself.
type Media struct {
	Name  string
	Bytes []byte
	URL   string
}

func (m Media) file() tgbotapi.RequestFileData {
	if len(m.Bytes) > 0 {
		return tgbotapi.FileBytes{Name: m.Name, Bytes: m.Bytes}
	}

	return tgbotapi.FileURL(m.URL)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, media Media, caption string) (*domain.Message, error) {
	cfg := tgbotapi.NewPhoto(chatID, media.file())
	cfg.Caption = caption

	return c.send(ctx, "sendPhoto", cfg)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, media Media, caption string) (*domain.Message, error) {
	cfg := tgbotapi.NewVideo(chatID, media.file())
	cfg.Caption = caption

	return c.send(ctx, "sendVideo", cfg)
}

func (c *Client) SendAudio(ctx context.Context, chatID int64, media Media, caption string) (*domain.Message, error) {
	cfg := tgbotapi.NewAudio(chatID, media.file())
	cfg.Caption = caption

	return c.send(ctx, "sendAudio", cfg)
}

func (c *Client) SendVoice(ctx context.Context, chatID int64, media Media, caption string) (*domain.Message, error) {
	cfg := tgbotapi.NewVoice(chatID, media.file())
	cfg.Caption = caption

	return c.send(ctx, "sendVoice", cfg)
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, media Media, caption string) (*domain.Message, error) {
	cfg := tgbotapi.NewDocument(chatID, media.file())
	cfg.Caption = caption

	return c.send(ctx, "sendDocument", cfg)
}

func (c *Client) send(ctx context.Context, method string, cfg tgbotapi.Chattable) (*domain.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	sent, err := c.api.Send(cfg)

	return c.observe(ctx, method, sent, err)
}

// observe converts a bot API echo into the canonical message representation
// through the same normalization path ingestion uses.
func (c *Client) observe(_ context.Context, method string, sent tgbotapi.Message, err error) (*domain.Message, error) {
	if err != nil {
		observability.BotAPICalls.WithLabelValues(method, "error").Inc()

		return nil, fmt.Errorf("%s: %w", method, err)
	}

	observability.BotAPICalls.WithLabelValues(method, "ok").Inc()

	raw, err := json.Marshal(sent)
	if err != nil {
		return nil, fmt.Errorf("encode sent message: %w", err)
	}

	msg, err := domain.NormalizeRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize sent message: %w", err)
	}

	return msg, nil
}

// SetReaction sets or removes the bot's own emoji reaction on a message.
// The library predates setMessageReaction, so this goes through a raw call.
func (c *Client) SetReaction(ctx context.Context, chatID, messageID int64, emoji, action string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reaction := "[]"
	if action != "remove" {
		encoded, err := json.Marshal([]map[string]string{{"type": "emoji", "emoji": emoji}})
		if err != nil {
			return nil, fmt.Errorf("encode reaction: %w", err)
		}

		reaction = string(encoded)
	}

	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero64("message_id", messageID)
	params["reaction"] = reaction

	resp, err := c.api.MakeRequest("setMessageReaction", params)
	if err != nil {
		observability.BotAPICalls.WithLabelValues("setMessageReaction", "error").Inc()

		return nil, fmt.Errorf("set reaction: %w", err)
	}

	observability.BotAPICalls.WithLabelValues("setMessageReaction", "ok").Inc()

	return json.RawMessage(resp.Result), nil
}

// FileURL re-resolves an opaque bot file id to a fresh download URL. Bot
// file URLs expire, so callers must not cache the result beyond a request.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		observability.BotAPICalls.WithLabelValues("getFile", "error").Inc()

		return "", fmt.Errorf("get file url: %w", err)
	}

	observability.BotAPICalls.WithLabelValues("getFile", "ok").Inc()

	return url, nil
}

// ProfilePhotoURL resolves a user's current profile photo to a URL. Returns
// empty with nil error when the user has no photo.
func (c *Client) ProfilePhotoURL(ctx context.Context, userID int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	photos, err := c.api.GetUserProfilePhotos(tgbotapi.UserProfilePhotosConfig{UserID: userID, Limit: 1})
	if err != nil {
		observability.BotAPICalls.WithLabelValues("getUserProfilePhotos", "error").Inc()

		return "", fmt.Errorf("get profile photos: %w", err)
	}

	observability.BotAPICalls.WithLabelValues("getUserProfilePhotos", "ok").Inc()

	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", nil
	}

	sizes := photos.Photos[0]

	return c.FileURL(ctx, sizes[len(sizes)-1].FileID)
}
