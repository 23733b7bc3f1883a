package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"
)

const timestampLayout = "20060102_150405"

// imageExts are the extensions counted by Stats, matching what the bot saves.
var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// Vault persists received files under a single directory. Filenames carry a
// timestamp plus an xid suffix, so two files written within the same second
// never collide. Files are created with O_EXCL, an existing name is an error
// rather than an overwrite.
type Vault struct {
	dir string
}

type SavedFile struct {
	Name string
	Size int64
}

type Stats struct {
	Images    int
	FreeBytes uint64
}

func New(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating save directory: %w", err)
	}

	return &Vault{dir: dir}, nil
}

func (v *Vault) Dir() string {
	return v.dir
}

// SavePhoto writes photo bytes as img_<timestamp>_<xid>.jpg. Photos arrive
// from the runtime already recompressed to JPEG.
func (v *Vault) SavePhoto(content []byte) (SavedFile, error) {
	name := fmt.Sprintf("img_%s_%s.jpg", time.Now().Format(timestampLayout), xid.New())
	return v.write(name, content)
}

// SaveDocument writes document bytes as <base>_<timestamp>_<xid><ext>, keeping
// the sender's original base name. When the original name carries no
// extension, one is sniffed from the content.
func (v *Vault) SaveDocument(content []byte, originalName string) (SavedFile, error) {
	base, ext := splitName(sanitizeName(originalName))
	if base == "" {
		base = "image"
	}
	if ext == "" {
		ext = mimetype.Detect(content).Extension()
	}

	name := fmt.Sprintf("%s_%s_%s%s", base, time.Now().Format(timestampLayout), xid.New(), ext)
	return v.write(name, content)
}

func (v *Vault) write(name string, content []byte) (SavedFile, error) {
	path := filepath.Join(v.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return SavedFile{}, fmt.Errorf("creating file: %w", err)
	}

	_, err = f.Write(content)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return SavedFile{}, fmt.Errorf("writing file: %w", err)
	}

	return SavedFile{Name: name, Size: int64(len(content))}, nil
}

// Stats reports how many image files the directory holds and how much space
// is left on its filesystem.
func (v *Vault) Stats() (Stats, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("reading save directory: %w", err)
	}

	var images int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := imageExts[ext]; ok {
			images++
		}
	}

	free, err := freeSpace(v.dir)
	if err != nil {
		return Stats{}, fmt.Errorf("getting free space: %w", err)
	}

	return Stats{Images: images, FreeBytes: free}, nil
}

// sanitizeName strips any directory components from a sender-provided name,
// so a name like "../../etc/passwd" cannot escape the save directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func splitName(name string) (base, ext string) {
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}
