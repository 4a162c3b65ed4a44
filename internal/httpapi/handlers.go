package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nkuznetsov/tgarchive/internal/core/domain"
	"github.com/nkuznetsov/tgarchive/internal/corpus"
	"github.com/nkuznetsov/tgarchive/internal/ingest"
	"github.com/nkuznetsov/tgarchive/internal/stats"
	"github.com/nkuznetsov/tgarchive/internal/storage"
	"github.com/nkuznetsov/tgarchive/internal/telegram"
)

// Bot is the outbound bot API surface the relay endpoints use.
type Bot interface {
	SendText(ctx context.Context, chatID int64, text string) (*domain.Message, error)
	SendPhoto(ctx context.Context, chatID int64, media telegram.Media, caption string) (*domain.Message, error)
	SendVideo(ctx context.Context, chatID int64, media telegram.Media, caption string) (*domain.Message, error)
	SendAudio(ctx context.Context, chatID int64, media telegram.Media, caption string) (*domain.Message, error)
	SendVoice(ctx context.Context, chatID int64, media telegram.Media, caption string) (*domain.Message, error)
	SendDocument(ctx context.Context, chatID int64, media telegram.Media, caption string) (*domain.Message, error)
	SetReaction(ctx context.Context, chatID, messageID int64, emoji, action string) (json.RawMessage, error)
	FileURL(ctx context.Context, fileID string) (string, error)
}

// MessageMirror is the store-backed read path for /messages: chats whose
// files were moved out of the live corpus are still served from the mirror.
type MessageMirror interface {
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]storage.StoredMessage, error)
}

// ChatSource lists chat summaries, normally the directory scanner.
type ChatSource interface {
	Chats(ctx context.Context, includeArchive, force bool) ([]domain.Chat, error)
}

// AvatarSource fills user photo urls into chat summaries.
type AvatarSource interface {
	Get(userID int64) (string, bool)
	Resolve(userID int64) <-chan string
}

// Handlers binds the endpoints to their collaborators. bot, store and
// avatars may be nil; the corresponding endpoints degrade.
type Handlers struct {
	corpus     *corpus.Corpus
	chats      ChatSource
	avatars    AvatarSource
	bot        Bot
	store      ingest.Store
	mirror     MessageMirror
	aggregator *stats.Aggregator
	logger     *zerolog.Logger
}

func NewHandlers(
	c *corpus.Corpus,
	chats ChatSource,
	avatars AvatarSource,
	bot Bot,
	store ingest.Store,
	mirror MessageMirror,
	aggregator *stats.Aggregator,
	logger *zerolog.Logger,
) *Handlers {
	return &Handlers{
		corpus:     c,
		chats:      chats,
		avatars:    avatars,
		bot:        bot,
		store:      store,
		mirror:     mirror,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Messages serves the corpus live tail, ordered by recency descending.
func (h *Handlers) Messages(w http.ResponseWriter, r *http.Request) {
	q := corpus.Query{
		Date:           r.URL.Query().Get("date"),
		Group:          r.URL.Query().Get("group"),
		IncludeArchive: boolParam(r, "include_archive"),
	}

	if q.Group == "" {
		q.Group = corpus.GroupAllPrivate
	}

	if since := r.URL.Query().Get("since"); since != "" {
		v, err := strconv.ParseInt(since, 10, 64)
		if err != nil {
			badRequest(w, "since must be an integer")

			return
		}

		q.Since = v
	}

	if limit := r.URL.Query().Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 0 {
			badRequest(w, "limit must be a non-negative integer")

			return
		}

		q.Limit = v
	}

	msgs, err := h.corpus.Messages(q)
	if err != nil {
		h.fail(w, "read messages", err)

		return
	}

	if len(msgs) == 0 {
		msgs = h.mirroredMessages(r.Context(), q)
	}

	if msgs == nil {
		msgs = []*domain.Message{}
	}

	writeJSON(w, http.StatusOK, msgs)
}

const mirrorFallbackLimit = 200

// mirroredMessages serves a single chat's history from the SQL mirror when
// its files are no longer in the live corpus tail.
func (h *Handlers) mirroredMessages(ctx context.Context, q corpus.Query) []*domain.Message {
	if h.mirror == nil || q.Date != "" || q.Since > 0 {
		return nil
	}

	chatID, err := strconv.ParseInt(q.Group, 10, 64)
	if err != nil {
		return nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = mirrorFallbackLimit
	}

	stored, err := h.mirror.RecentMessages(ctx, chatID, limit)
	if err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("mirror read failed")

		return nil
	}

	out := make([]*domain.Message, 0, len(stored))
	for _, sm := range stored {
		out = append(out, storedToMessage(sm))
	}

	return out
}

func storedToMessage(sm storage.StoredMessage) *domain.Message {
	return &domain.Message{
		ChatID:    sm.ChatID,
		MessageID: sm.MessageID,
		FromID:    sm.FromID,
		Date:      sm.Date.Unix(),
		Text:      sm.Text,
		Caption:   sm.Caption,
		Type:      domain.MediaType(sm.MediaType),
		MediaRef:  sm.MediaRef,
		Reactions: sm.Reactions,
		Raw:       sm.Raw,
	}
}

// Chats serves the scanner's chat summaries with avatar urls filled in from
// the cache. Misses are queued for background resolution and show up on a
// later refresh.
func (h *Handlers) Chats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chats.Chats(r.Context(), boolParam(r, "include_archive"), boolParam(r, "force"))
	if err != nil {
		h.fail(w, "scan chats", err)

		return
	}

	if chats == nil {
		chats = []domain.Chat{}
	}

	if h.avatars != nil {
		for i := range chats {
			if chats[i].ID <= 0 || chats[i].Photo != "" {
				continue
			}

			url, ok := h.avatars.Get(chats[i].ID)

			switch {
			case ok && url != domain.PhotoNone:
				chats[i].Photo = url
			case !ok:
				h.avatars.Resolve(chats[i].ID)
			}
		}
	}

	writeJSON(w, http.StatusOK, chats)
}

type reactionRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"`
}

// SetReaction relays a reaction to the bot API and persists it into the
// on-disk message file so a later re-ingest sees it.
func (h *Handlers) SetReaction(w http.ResponseWriter, r *http.Request) {
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")

		return
	}

	if req.ChatID == 0 || req.MessageID == 0 {
		badRequest(w, "chat_id and message_id are required")

		return
	}

	if req.Action == "" {
		req.Action = "add"
	}

	if h.bot == nil {
		writeJSON(w, http.StatusOK, relayResult{Success: false, Error: "bot is not configured"})

		return
	}

	result, err := h.bot.SetReaction(r.Context(), req.ChatID, req.MessageID, req.Emoji, req.Action)
	if err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", req.ChatID).Int64("message_id", req.MessageID).
			Msg("set reaction relay failed")
		writeJSON(w, http.StatusOK, relayResult{Success: false, Error: err.Error()})

		return
	}

	if err := h.corpus.ApplyReaction(req.ChatID, req.MessageID, req.Emoji, req.Action); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", req.ChatID).Int64("message_id", req.MessageID).
			Msg("reaction not persisted to corpus")
	}

	writeJSON(w, http.StatusOK, relayResult{Success: true, Result: result})
}

// Stats serves the aggregate report. Without a SQL mirror the report is
// empty, never an error.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, "days must be an integer")

			return
		}

		days = n
	}

	writeJSON(w, http.StatusOK, h.aggregator.Collect(r.Context(), days))
}

// FileURL re-resolves a bot file id to a fresh download url. Bot API file
// urls expire, so clients ask again instead of storing them.
func (h *Handlers) FileURL(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		badRequest(w, "file_id is required")

		return
	}

	if h.bot == nil {
		writeJSON(w, http.StatusOK, relayResult{Success: false, Error: "bot is not configured"})

		return
	}

	url, err := h.bot.FileURL(r.Context(), fileID)
	if err != nil {
		writeJSON(w, http.StatusOK, relayResult{Success: false, Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// SendMessage relays a text message through the bot and persists the echoed
// copy locally.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")

		return
	}

	if req.ChatID == 0 || req.Text == "" {
		badRequest(w, "chat_id and text are required")

		return
	}

	if h.bot == nil {
		writeJSON(w, http.StatusOK, relayResult{Success: false, Error: "bot is not configured"})

		return
	}

	msg, err := h.bot.SendText(r.Context(), req.ChatID, req.Text)
	h.finishSend(r.Context(), w, msg, err)
}

// sendMedia builds the relay handler for one media kind. The request is
// either multipart/form-data with a file part or json with a url.
func (h *Handlers) sendMedia(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, media, caption, ok := h.parseMediaRequest(w, r)
		if !ok {
			return
		}

		if h.bot == nil {
			writeJSON(w, http.StatusOK, relayResult{Success: false, Error: "bot is not configured"})

			return
		}

		send := map[string]func(context.Context, int64, telegram.Media, string) (*domain.Message, error){
			"photo":    h.bot.SendPhoto,
			"video":    h.bot.SendVideo,
			"audio":    h.bot.SendAudio,
			"voice":    h.bot.SendVoice,
			"document": h.bot.SendDocument,
		}[kind]

		msg, err := send(r.Context(), chatID, media, caption)
		h.finishSend(r.Context(), w, msg, err)
	}
}

func (h *Handlers) parseMediaRequest(w http.ResponseWriter, r *http.Request) (int64, telegram.Media, string, bool) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			badRequest(w, "invalid multipart body")

			return 0, telegram.Media{}, "", false
		}

		chatID, err := strconv.ParseInt(r.FormValue("chat_id"), 10, 64)
		if err != nil || chatID == 0 {
			badRequest(w, "chat_id is required")

			return 0, telegram.Media{}, "", false
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "file part is required")

			return 0, telegram.Media{}, "", false
		}

		defer func() {
			_ = file.Close()
		}()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			badRequest(w, "unreadable file part")

			return 0, telegram.Media{}, "", false
		}

		return chatID, telegram.Media{Name: header.Filename, Bytes: data}, r.FormValue("caption"), true
	}

	var req struct {
		ChatID  int64  `json:"chat_id"`
		URL     string `json:"url"`
		Caption string `json:"caption"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json body")

		return 0, telegram.Media{}, "", false
	}

	if req.ChatID == 0 || req.URL == "" {
		badRequest(w, "chat_id and url are required")

		return 0, telegram.Media{}, "", false
	}

	return req.ChatID, telegram.Media{URL: req.URL}, req.Caption, true
}

// finishSend persists the bot's echoed message into the corpus and, best
// effort, into the SQL mirror, then answers the relay result.
func (h *Handlers) finishSend(ctx context.Context, w http.ResponseWriter, msg *domain.Message, err error) {
	if err != nil {
		h.logger.Warn().Err(err).Msg("send relay failed")
		writeJSON(w, http.StatusOK, relayResult{Success: false, Error: err.Error()})

		return
	}

	if _, err := h.corpus.WriteMessage(msg); err != nil {
		h.logger.Error().Err(err).Str("message", msg.Key()).Msg("sent message not written to corpus")
	}

	h.mirrorSend(ctx, msg)

	writeJSON(w, http.StatusOK, relayResult{Success: true, Message: msg})
}

func (h *Handlers) mirrorSend(ctx context.Context, msg *domain.Message) {
	if h.store == nil {
		return
	}

	if _, err := h.store.UpsertMessage(ctx, msg); err != nil {
		h.logger.Warn().Err(err).Str("message", msg.Key()).Msg("sent message not mirrored")

		return
	}

	chat, kind := domain.ChatOf(msg.Raw)
	if chat.ID == 0 {
		chat.ID = msg.ChatID
	}

	if err := h.store.TouchChat(ctx, chat, kind, time.Unix(msg.Date, 0), msg.Body()); err != nil {
		h.logger.Warn().Err(err).Int64("chat_id", chat.ID).Msg("chat not touched after send")
	}

	if sender := domain.SenderOf(msg.Raw); sender != nil {
		if err := h.store.UpsertUser(ctx, sender); err != nil {
			h.logger.Warn().Err(err).Int64("user_id", sender.ID).Msg("sender not mirrored")
		}
	}
}

type relayResult struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (h *Handlers) fail(w http.ResponseWriter, what string, err error) {
	h.logger.Error().Err(err).Msg(what + " failed")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": what + " failed"})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func boolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)

	return v == "1" || strings.EqualFold(v, "true")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
