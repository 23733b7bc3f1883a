package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"nuclight.org/daguerre-tg-bot/app/vault"
	e "nuclight.org/daguerre-tg-bot/pkg/entities"
	"nuclight.org/daguerre-tg-bot/pkg/logger"
)

var noReply = e.Reply{}

// Downloader fetches attachment bytes through the bot runtime.
type Downloader interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// FileStore persists received files and reports on the save directory.
type FileStore interface {
	Dir() string
	SavePhoto(content []byte) (vault.SavedFile, error)
	SaveDocument(content []byte, originalName string) (vault.SavedFile, error)
	Stats() (vault.Stats, error)
}

// KeeperSrv is a handler of new messages. Photos and image documents from
// allowed senders are downloaded and written to the file store, everything
// else gets a usage reply. An empty allow-list means every sender is allowed.
// Failures during download or save are reported back to the sender as a chat
// message and never kill the process.
type KeeperSrv struct {
	// Log is a logger
	Log logger.Logger

	// AllowedUserIDs is the allow-list, empty means no restriction
	AllowedUserIDs []int64

	// Files is the store for received files
	Files FileStore

	// Downloader fetches attachment content from the runtime
	Downloader Downloader
}

// HandleMessage handles a message and returns the reply to send back to the
// chat it came from. An empty reply means nothing has to be sent. The reply
// has to be sent even if error is not nil, error replies are user-visible.
func (s *KeeperSrv) HandleMessage(ctx context.Context, msg e.Message) (e.Reply, error) {
	switch msg.Kind {
	case e.MessageKindPhoto:
		return s.handlePhoto(ctx, msg)
	case e.MessageKindDocument:
		return s.handleDocument(ctx, msg)
	case e.MessageKindCommand:
		return s.handleCommand(msg)
	case e.MessageKindText:
		return e.Reply{Text: "Please send me an image! I can save:\n" +
			"📷 Photos (compressed)\n" +
			"🖼 Image documents (uncompressed)\n" +
			"\nUse /help for more info."}, nil
	default:
		return noReply, fmt.Errorf("unknown message kind: %s", msg.Kind)
	}
}

func (s *KeeperSrv) handlePhoto(ctx context.Context, msg e.Message) (e.Reply, error) {
	if !s.isAllowed(msg.Sender.ID) {
		s.Log.Warn("unauthorized sender", "user_id", msg.Sender.ID, "user_name", msg.Sender.Name)
		return e.Reply{Text: "❌ Unauthorized user"}, nil
	}

	content, err := s.Downloader.DownloadFile(ctx, msg.Attachment.FileID)
	if err != nil {
		return e.Reply{Text: "❌ Error saving image: " + err.Error()},
			fmt.Errorf("downloading photo: %w", err)
	}

	saved, err := s.Files.SavePhoto(content)
	if err != nil {
		return e.Reply{Text: "❌ Error saving image: " + err.Error()},
			fmt.Errorf("saving photo: %w", err)
	}

	s.Log.Info("image saved", "name", saved.Name, "size", saved.Size, "user_id", msg.Sender.ID)

	return e.Reply{Text: fmt.Sprintf(
		"✅ Image saved!\n📁 %s\n📊 Size: %s",
		saved.Name, humanize.IBytes(uint64(saved.Size)),
	)}, nil
}

func (s *KeeperSrv) handleDocument(ctx context.Context, msg e.Message) (e.Reply, error) {
	if !s.isAllowed(msg.Sender.ID) {
		s.Log.Warn("unauthorized sender", "user_id", msg.Sender.ID, "user_name", msg.Sender.Name)
		return e.Reply{Text: "❌ Unauthorized user"}, nil
	}

	if !isImageMime(msg.Attachment.MimeType) {
		return e.Reply{Text: "❌ Please send only image files"}, nil
	}

	content, err := s.Downloader.DownloadFile(ctx, msg.Attachment.FileID)
	if err != nil {
		return e.Reply{Text: "❌ Error saving document: " + err.Error()},
			fmt.Errorf("downloading document: %w", err)
	}

	saved, err := s.Files.SaveDocument(content, msg.Attachment.FileName)
	if err != nil {
		return e.Reply{Text: "❌ Error saving document: " + err.Error()},
			fmt.Errorf("saving document: %w", err)
	}

	s.Log.Info("document saved", "name", saved.Name, "size", saved.Size, "user_id", msg.Sender.ID)

	return e.Reply{Text: fmt.Sprintf(
		"✅ Document saved!\n📁 %s\n📊 Size: %s",
		saved.Name, humanize.IBytes(uint64(saved.Size)),
	)}, nil
}

func (s *KeeperSrv) handleCommand(msg e.Message) (e.Reply, error) {
	switch msg.Command {
	case "start":
		return e.Reply{Text: "Hi! Send me images and I'll save them.\n" +
			"Commands:\n" +
			"/start - Show this message\n" +
			"/status - Check bot status\n" +
			"/help - Show help"}, nil
	case "help":
		return e.Reply{Text: "Just send me any image and I'll save it with a timestamp.\n" +
			"Supported formats: JPG, PNG, GIF, WebP\n" +
			"Images are saved to: " + s.Files.Dir()}, nil
	case "status":
		return s.handleStatus(msg)
	default:
		return e.Reply{Text: "Unknown command. Use /help for more info."}, nil
	}
}

func (s *KeeperSrv) handleStatus(msg e.Message) (e.Reply, error) {
	stats, err := s.Files.Stats()
	if err != nil {
		return e.Reply{Text: "❌ Error checking status: " + err.Error()},
			fmt.Errorf("getting store stats: %w", err)
	}

	return e.Reply{Text: fmt.Sprintf(
		"✅ Bot is running\n📁 Save path: %s\n🖼 Images saved: %d\n💾 Free space: %s",
		s.Files.Dir(), stats.Images, humanize.IBytes(stats.FreeBytes),
	)}, nil
}

func (s *KeeperSrv) isAllowed(userID int64) bool {
	if len(s.AllowedUserIDs) == 0 {
		return true
	}
	return slices.Contains(s.AllowedUserIDs, userID)
}

func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
