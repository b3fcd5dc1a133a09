package domain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wailsapp/mimetype"
)

// ErrUnsupportedMedia is returned for files that are neither audio nor video.
var ErrUnsupportedMedia = errors.New("unsupported media type")

// SelectedMedia is the file picked by the user. Exactly one of SourcePath
// and SourceBytes is populated.
type SelectedMedia struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"size"`
	MimeKind    string `json:"type"`
	SourcePath  string `json:"path,omitempty"`
	SourceBytes []byte `json:"-"`
}

// IsVideo reports whether the media carries a video container.
func (m SelectedMedia) IsVideo() bool {
	return strings.HasPrefix(m.MimeKind, "video/")
}

// Validate checks the single-source and media-kind invariants.
func (m SelectedMedia) Validate() error {
	hasPath := strings.TrimSpace(m.SourcePath) != ""
	hasBytes := len(m.SourceBytes) > 0
	if hasPath == hasBytes {
		return fmt.Errorf("media %q must have exactly one source", m.Name)
	}
	if !isMediaKind(m.MimeKind) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMedia, m.MimeKind)
	}
	return nil
}

// NewMediaFromPath builds a path-based selection, sniffing the media kind
// from file content.
func NewMediaFromPath(path string) (SelectedMedia, error) {
	path = strings.TrimSpace(path)
	info, err := os.Stat(path)
	if err != nil {
		return SelectedMedia{}, fmt.Errorf("stat media: %w", err)
	}
	if info.IsDir() {
		return SelectedMedia{}, fmt.Errorf("media path is a directory: %s", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return SelectedMedia{}, fmt.Errorf("detect media type: %w", err)
	}

	media := SelectedMedia{
		Name:       filepath.Base(path),
		SizeBytes:  info.Size(),
		MimeKind:   mediaKind(mtype),
		SourcePath: path,
	}
	if err := media.Validate(); err != nil {
		return SelectedMedia{}, err
	}
	return media, nil
}

// NewMediaFromBytes builds an in-memory selection, e.g. from a drag and drop.
// A declared kind from the caller wins over sniffing when it is a media kind.
func NewMediaFromBytes(name, declaredKind string, data []byte) (SelectedMedia, error) {
	kind := strings.TrimSpace(declaredKind)
	if !isMediaKind(kind) {
		kind = mediaKind(mimetype.Detect(data))
	}

	media := SelectedMedia{
		Name:        filepath.Base(strings.TrimSpace(name)),
		SizeBytes:   int64(len(data)),
		MimeKind:    kind,
		SourceBytes: data,
	}
	if err := media.Validate(); err != nil {
		return SelectedMedia{}, err
	}
	return media, nil
}

// mediaKind walks the detected type up its parents until an audio or video
// kind is found, so e.g. "audio/x-m4a" maps cleanly.
func mediaKind(m *mimetype.MIME) string {
	for cur := m; cur != nil; cur = cur.Parent() {
		if isMediaKind(cur.String()) {
			return cur.String()
		}
	}
	if m == nil {
		return ""
	}
	return m.String()
}

func isMediaKind(kind string) bool {
	return strings.HasPrefix(kind, "audio/") || strings.HasPrefix(kind, "video/")
}
