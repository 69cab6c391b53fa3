package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/bus"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/logger"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/utils"
)

const replyRefTTL = 30 * time.Minute

// replyRef remembers the message that carries the reply to an event.
type replyRef struct {
	chatID    int64
	messageID int
	at        time.Time
}

// TelegramChannel talks to the Bot API. Only messages written by the
// configured owner become events. The first Edit of an event sends a
// reply; later edits update that reply in place.
type TelegramChannel struct {
	*BaseChannel
	bot     *telego.Bot
	config  config.TelegramConfig
	ownerID int64
	limiter *rate.Limiter
	refs    sync.Map // event id -> replyRef

	// maxDownload caps document downloads. Zero means no limit.
	maxDownload int64

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegramChannel(cfg config.TelegramConfig, token string, ownerID int64, mb *bus.MessageBus) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: telegram token is empty", ErrTransport)
	}
	if ownerID == 0 {
		return nil, fmt.Errorf("%w: telegram owner id is not set", ErrTransport)
	}

	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, telego.WithAPIServer(strings.TrimRight(cfg.BaseURL, "/")))
	}

	bot, err := telego.NewBot(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create telegram bot: %v", ErrTransport, err)
	}

	limit := rate.Inf
	if cfg.EditRate > 0 {
		limit = rate.Limit(cfg.EditRate)
	}

	return &TelegramChannel{
		BaseChannel: NewBaseChannel(config.TransportTelegram, mb),
		bot:         bot,
		config:      cfg,
		ownerID:     ownerID,
		limiter:     rate.NewLimiter(limit, 3),
	}, nil
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	logger.InfoC("telegram", "Starting Telegram bot (polling mode)...")

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("%w: start long polling: %v", ErrTransport, err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"username": c.bot.Username(),
		"owner_id": c.ownerID,
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.markDone()
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					logger.WarnC("telegram", "Updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()
	return nil
}

func (c *TelegramChannel) Disconnect(ctx context.Context) error {
	logger.InfoC("telegram", "Stopping Telegram bot...")
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.markDone()
	return nil
}

func (c *TelegramChannel) handleMessage(ctx context.Context, msg *telego.Message) {
	evt, ok := ownerEvent(msg, c.ownerID)
	if !ok {
		return
	}
	evt.ID = uuid.NewString()

	logger.DebugCF("telegram", "Received owner message", map[string]any{
		"chat_id": evt.ChatID,
		"event":   evt.ID,
		"preview": utils.Truncate(evt.Text, 50),
	})
	if !c.publish(ctx, evt) {
		logger.WarnCF("telegram", "Dropped message, bus closed", map[string]any{"event": evt.ID})
	}
}

// ownerEvent converts msg into an event when it was written by ownerID.
func ownerEvent(msg *telego.Message, ownerID int64) (bus.Event, bool) {
	if msg == nil || msg.From == nil || msg.From.ID != ownerID {
		return bus.Event{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	evt := bus.Event{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		MessageID: strconv.Itoa(msg.MessageID),
		SenderID:  strconv.FormatInt(msg.From.ID, 10),
		Text:      text,
	}
	if r := msg.ReplyToMessage; r != nil {
		evt.IsReply = true
		evt.ReplyTo = strconv.Itoa(r.MessageID)
		if d := r.Document; d != nil {
			evt.ReplyDocument = &bus.Document{
				FileID:   d.FileID,
				FileName: d.FileName,
				Size:     d.FileSize,
				MIMEType: d.MimeType,
			}
		}
	}
	return evt, true
}

// Edit shows text as the reply to evt.
func (c *TelegramChannel) Edit(ctx context.Context, evt bus.Event, text string) error {
	chatID, err := strconv.ParseInt(evt.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", evt.ChatID, err)
	}
	chunks := splitMessage(text, telegramMaxMessageLength)
	if len(chunks) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.pruneRefs()

	if v, ok := c.refs.Load(evt.ID); ok {
		ref := v.(replyRef)
		if err := c.editMessageChunk(ctx, ref.chatID, ref.messageID, chunks[0]); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	} else {
		replyTo, _ := strconv.Atoi(evt.MessageID)
		sent, err := c.sendMessageChunk(ctx, chatID, replyTo, chunks[0])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		c.refs.Store(evt.ID, replyRef{chatID: chatID, messageID: sent.MessageID, at: time.Now()})
	}

	for _, chunk := range chunks[1:] {
		if _, err := c.sendMessageChunk(ctx, chatID, 0, chunk); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}
	return nil
}

func (c *TelegramChannel) pruneRefs() {
	cutoff := time.Now().Add(-replyRefTTL)
	c.refs.Range(func(k, v any) bool {
		if v.(replyRef).at.Before(cutoff) {
			c.refs.Delete(k)
		}
		return true
	})
}

func (c *TelegramChannel) sendMessageChunk(ctx context.Context, chatID int64, replyTo int, content string) (*telego.Message, error) {
	msg := tu.Message(tu.ID(chatID), markdownToTelegramHTML(content))
	msg.ParseMode = telego.ModeHTML
	if replyTo > 0 {
		msg.ReplyParameters = &telego.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}

	sent, err := c.bot.SendMessage(ctx, msg)
	if err == nil {
		return sent, nil
	}
	logger.WarnCF("telegram", "HTML parse failed, falling back to plain text", map[string]any{
		"error": err.Error(),
	})
	msg.Text = content
	msg.ParseMode = ""
	return c.bot.SendMessage(ctx, msg)
}

func (c *TelegramChannel) editMessageChunk(ctx context.Context, chatID int64, messageID int, content string) error {
	edit := tu.EditMessageText(tu.ID(chatID), messageID, markdownToTelegramHTML(content))
	edit.ParseMode = telego.ModeHTML
	_, err := c.bot.EditMessageText(ctx, edit)
	if err == nil || isNotModified(err) {
		return nil
	}
	logger.WarnCF("telegram", "HTML edit parse failed, falling back to plain text", map[string]any{
		"error": err.Error(),
	})
	plain := tu.EditMessageText(tu.ID(chatID), messageID, content)
	if _, err := c.bot.EditMessageText(ctx, plain); err != nil && !isNotModified(err) {
		return err
	}
	return nil
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

// SetMaxDownloadBytes caps the size of documents fetched by Download.
// Zero or less disables the cap.
func (c *TelegramChannel) SetMaxDownloadBytes(n int64) {
	c.maxDownload = max(n, 0)
}

// Download fetches doc into dir. Documents over the download cap are
// rejected from their advertised size before any byte is fetched.
func (c *TelegramChannel) Download(ctx context.Context, doc bus.Document, dir string) (string, error) {
	limit := c.maxDownload
	if limit > 0 && doc.Size > limit {
		return "", fmt.Errorf("%w: file is %d bytes, limit is %d", ErrTransport, doc.Size, limit)
	}
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: doc.FileID})
	if err != nil {
		return "", fmt.Errorf("%w: get file: %v", ErrTransport, err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("%w: file %s has no download path", ErrTransport, doc.FileID)
	}
	if limit > 0 && file.FileSize > limit {
		return "", fmt.Errorf("%w: file is %d bytes, limit is %d", ErrTransport, file.FileSize, limit)
	}
	path, err := utils.DownloadFile(ctx, c.bot.FileDownloadURL(file.FilePath), dir, doc.FileName, utils.DownloadOptions{
		MaxBytes:     limit,
		LoggerPrefix: "telegram",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return path, nil
}

// Self returns the bot account.
func (c *TelegramChannel) Self(ctx context.Context) (bus.Identity, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return bus.Identity{}, fmt.Errorf("%w: get me: %v", ErrTransport, err)
	}
	return bus.Identity{
		ID:       strconv.FormatInt(me.ID, 10),
		Username: me.Username,
		Name:     me.FirstName,
	}, nil
}
