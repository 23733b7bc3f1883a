package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	e "nuclight.org/daguerre-tg-bot/pkg/entities"
	"nuclight.org/daguerre-tg-bot/pkg/logger"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, msg e.Message) (e.Reply, error)
}

type Client struct {
	Log        logger.Logger
	APIToken   string
	WorkersNum int
	Handler    MessageHandler

	bot *tgbotapi.BotAPI
	wg  sync.WaitGroup
}

func (c *Client) Start(ctx context.Context) (err error) {
	if c.WorkersNum == 0 {
		return fmt.Errorf("workers number must be greater than 0")
	}

	log := c.Log

	c.bot, err = tgbotapi.NewBotAPI(c.APIToken)
	if err != nil {
		return fmt.Errorf("creating bot api: %w", err)
	}

	log.Info("bot api created", "username", c.bot.Self.UserName)

	updatesConf := tgbotapi.NewUpdate(0)
	updatesConf.Timeout = 60

	updatesChan := c.bot.GetUpdatesChan(updatesConf)

	for i := 0; i < c.WorkersNum; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleUpdatesFromChan(ctx, updatesChan)
		}()
	}

	return nil
}

func (c *Client) Wait() {
	c.wg.Wait()
}

// DownloadFile fetches attachment bytes by Telegram file ID. It implements
// the downloader the handler uses to get attachment content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("getting file: %w", err)
	}

	fileURL := file.Link(c.bot.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return content, nil
}

func (c *Client) handleUpdatesFromChan(ctx context.Context, updatesChan tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updatesChan:
			err := c.handleUpdate(ctx, update)
			if err != nil {
				c.Log.Error("handling update", "tg_update_id", update.UpdateID, "error", err)
				sentry.CaptureException(err)
			}
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	log := c.Log.With("tg_update_id", update.UpdateID)

	defer func() {
		if err := recover(); err != nil {
			log.Error("panic", "error", err)
		}
	}()

	if update.Message == nil {
		log.Warn("message is nil")
		return nil
	}

	if update.Message.From == nil {
		log.Warn("message from is nil")
		return nil
	}

	if update.Message.Chat == nil {
		log.Warn("message chat is nil")
		return nil
	}

	msg, ok := BuildMessage(update.Message)
	if !ok {
		log.Info("unsupported message", "tg_message_id", update.Message.MessageID)
		return c.sendReply(update.Message.Chat.ID, e.Reply{
			Text: "Unsupported message type. Please send me an image.",
		})
	}

	log.Info(
		"new message",
		"kind", msg.Kind,
		"tg_message_id", update.Message.MessageID,
		"tg_user_id", update.Message.From.ID,
		"tg_user_nick", update.Message.From.UserName,
		"tg_chat_id", update.Message.Chat.ID,
	)

	reply, err := c.Handler.HandleMessage(ctx, msg)

	// The reply carries the user-visible error report, send it before
	// propagating the error.
	if !reply.IsEmpty() {
		if sendErr := c.sendReply(msg.Sender.ChatID, reply); sendErr != nil {
			log.Error("sending reply", "error", sendErr)
		}
	}

	if err != nil {
		return fmt.Errorf("handling message: %w", err)
	}

	return nil
}

func (c *Client) sendReply(chatID int64, reply e.Reply) error {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.DisableWebPagePreview = true

	_, err := c.bot.Send(msg)
	return err
}

// BuildMessage converts a runtime update into the tagged message variant the
// handler works with. It reports false for message types the bot does not
// understand at all (stickers, videos, voice notes and so on).
func BuildMessage(message *tgbotapi.Message) (e.Message, bool) {
	sender := e.User{
		ID:     message.From.ID,
		Name:   takeUserName(message.From),
		ChatID: message.Chat.ID,
	}

	switch {
	case len(message.Photo) > 0:
		// Telegram sends several sizes of the same photo, the last one
		// is the largest.
		photo := message.Photo[len(message.Photo)-1]
		return e.Message{
			Sender: sender,
			Kind:   e.MessageKindPhoto,
			Attachment: e.Attachment{
				FileID:   photo.FileID,
				MimeType: "image/jpeg",
				Size:     int64(photo.FileSize),
			},
		}, true

	case message.Document != nil:
		return e.Message{
			Sender: sender,
			Kind:   e.MessageKindDocument,
			Attachment: e.Attachment{
				FileID:   message.Document.FileID,
				FileName: message.Document.FileName,
				MimeType: message.Document.MimeType,
				Size:     int64(message.Document.FileSize),
			},
		}, true

	case message.IsCommand():
		return e.Message{
			Sender:  sender,
			Kind:    e.MessageKindCommand,
			Command: message.Command(),
		}, true

	case message.Text != "":
		return e.Message{
			Sender: sender,
			Kind:   e.MessageKindText,
			Text:   message.Text,
		}, true

	default:
		return e.Message{}, false
	}
}

func takeUserName(user *tgbotapi.User) string {
	var sb strings.Builder

	if user.FirstName != "" {
		sb.WriteString(user.FirstName)
	}

	if user.LastName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
		}
		sb.WriteString(user.LastName)
	}

	if user.UserName != "" {
		if sb.Len() > 0 {
			sb.WriteRune(' ')
			sb.WriteRune('(')
			sb.WriteRune('@')
			sb.WriteString(user.UserName)
			sb.WriteRune(')')
		} else {
			sb.WriteRune('@')
			sb.WriteString(user.UserName)
		}
	}

	if sb.Len() == 0 {
		return strconv.FormatInt(user.ID, 10)
	}

	return sb.String()
}
