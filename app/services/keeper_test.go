package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"nuclight.org/daguerre-tg-bot/app/services"
	"nuclight.org/daguerre-tg-bot/app/vault"
	e "nuclight.org/daguerre-tg-bot/pkg/entities"
)

type fakeDownloader struct {
	content []byte
	err     error
	calls   int
}

func (d *fakeDownloader) DownloadFile(_ context.Context, _ string) ([]byte, error) {
	d.calls++
	return d.content, d.err
}

func newKeeper(t *testing.T, allowed []int64, dl *fakeDownloader) (*services.KeeperSrv, *vault.Vault) {
	t.Helper()

	v, err := vault.New(t.TempDir())
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	return &services.KeeperSrv{
		Log:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		AllowedUserIDs: allowed,
		Files:          v,
		Downloader:     dl,
	}, v
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading %s: %v", dir, err)
	}
	return len(entries)
}

func photoFrom(userID int64) e.Message {
	return e.Message{
		Sender:     e.User{ID: userID, ChatID: userID},
		Kind:       e.MessageKindPhoto,
		Attachment: e.Attachment{FileID: "file-1", MimeType: "image/jpeg"},
	}
}

func TestHandlePhotoDenied(t *testing.T) {
	dl := &fakeDownloader{content: []byte("jpeg")}
	keeper, v := newKeeper(t, []int64{111}, dl)

	reply, err := keeper.HandleMessage(context.Background(), photoFrom(222))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !strings.Contains(reply.Text, "Unauthorized") {
		t.Errorf("reply %q; want a denial", reply.Text)
	}
	if dl.calls != 0 {
		t.Errorf("downloader called %d times for a denied sender", dl.calls)
	}
	if n := countFiles(t, v.Dir()); n != 0 {
		t.Errorf("save directory has %d files; want 0", n)
	}
}

func TestHandlePhotoAllowed(t *testing.T) {
	dl := &fakeDownloader{content: []byte("jpeg bytes")}
	keeper, v := newKeeper(t, []int64{111}, dl)

	reply, err := keeper.HandleMessage(context.Background(), photoFrom(111))
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if n := countFiles(t, v.Dir()); n != 1 {
		t.Fatalf("save directory has %d files; want 1", n)
	}

	entries, _ := os.ReadDir(v.Dir())
	if !strings.Contains(reply.Text, entries[0].Name()) {
		t.Errorf("reply %q does not mention saved file %q", reply.Text, entries[0].Name())
	}
}

func TestEmptyAllowListAllowsEveryone(t *testing.T) {
	dl := &fakeDownloader{content: []byte("jpeg")}
	keeper, v := newKeeper(t, nil, dl)

	if _, err := keeper.HandleMessage(context.Background(), photoFrom(12345)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if n := countFiles(t, v.Dir()); n != 1 {
		t.Errorf("save directory has %d files; want 1", n)
	}
}

func TestHandlePhotoDownloadError(t *testing.T) {
	dl := &fakeDownloader{err: errors.New("network down")}
	keeper, v := newKeeper(t, nil, dl)

	reply, err := keeper.HandleMessage(context.Background(), photoFrom(1))
	if err == nil {
		t.Fatalf("HandleMessage returned nil error")
	}

	if !strings.Contains(reply.Text, "Error saving image") {
		t.Errorf("reply %q; want an error report", reply.Text)
	}
	if n := countFiles(t, v.Dir()); n != 0 {
		t.Errorf("save directory has %d files; want 0", n)
	}
}

func TestHandleDocument(t *testing.T) {
	tests := []struct {
		name      string
		mimeType  string
		fileName  string
		wantSaved bool
		wantReply string
	}{
		{
			name:      "image document is saved",
			mimeType:  "image/png",
			fileName:  "scan.png",
			wantSaved: true,
			wantReply: "Document saved",
		},
		{
			name:      "non-image document is rejected",
			mimeType:  "application/pdf",
			fileName:  "report.pdf",
			wantSaved: false,
			wantReply: "only image files",
		},
		{
			name:      "missing mime type is rejected",
			mimeType:  "",
			fileName:  "mystery",
			wantSaved: false,
			wantReply: "only image files",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dl := &fakeDownloader{content: []byte("png bytes")}
			keeper, v := newKeeper(t, nil, dl)

			msg := e.Message{
				Sender: e.User{ID: 1, ChatID: 1},
				Kind:   e.MessageKindDocument,
				Attachment: e.Attachment{
					FileID:   "file-2",
					FileName: tc.fileName,
					MimeType: tc.mimeType,
				},
			}

			reply, err := keeper.HandleMessage(context.Background(), msg)
			if err != nil {
				t.Fatalf("HandleMessage: %v", err)
			}

			if !strings.Contains(reply.Text, tc.wantReply) {
				t.Errorf("reply %q; want it to contain %q", reply.Text, tc.wantReply)
			}

			want := 0
			if tc.wantSaved {
				want = 1
			}
			if n := countFiles(t, v.Dir()); n != want {
				t.Errorf("save directory has %d files; want %d", n, want)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	dl := &fakeDownloader{content: []byte("jpeg")}
	keeper, _ := newKeeper(t, nil, dl)

	if _, err := keeper.HandleMessage(context.Background(), photoFrom(1)); err != nil {
		t.Fatalf("saving photo: %v", err)
	}

	reply, err := keeper.HandleMessage(context.Background(), e.Message{
		Sender:  e.User{ID: 1, ChatID: 1},
		Kind:    e.MessageKindCommand,
		Command: "status",
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !strings.Contains(reply.Text, "Images saved: 1") {
		t.Errorf("reply %q; want image count 1", reply.Text)
	}
	if !strings.Contains(reply.Text, "Free space") {
		t.Errorf("reply %q; want free space report", reply.Text)
	}
}

func TestHandleTextNudge(t *testing.T) {
	keeper, _ := newKeeper(t, nil, &fakeDownloader{})

	reply, err := keeper.HandleMessage(context.Background(), e.Message{
		Sender: e.User{ID: 1, ChatID: 1},
		Kind:   e.MessageKindText,
		Text:   "hello",
	})
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !strings.Contains(reply.Text, "send me an image") {
		t.Errorf("reply %q; want a usage nudge", reply.Text)
	}
}

func TestHandleCommands(t *testing.T) {
	keeper, v := newKeeper(t, nil, &fakeDownloader{})

	tests := []struct {
		command string
		want    string
	}{
		{command: "start", want: "/status"},
		{command: "help", want: v.Dir()},
		{command: "frobnicate", want: "Unknown command"},
	}

	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			reply, err := keeper.HandleMessage(context.Background(), e.Message{
				Sender:  e.User{ID: 1, ChatID: 1},
				Kind:    e.MessageKindCommand,
				Command: tc.command,
			})
			if err != nil {
				t.Fatalf("HandleMessage: %v", err)
			}
			if !strings.Contains(reply.Text, tc.want) {
				t.Errorf("reply %q; want it to contain %q", reply.Text, tc.want)
			}
		})
	}
}
