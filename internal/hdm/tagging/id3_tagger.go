// =============================================================================
// FILE: internal/hdm/tagging/id3_tagger.go
// PURPOSE: ID3Tagger: writes ID3v2 tags for .mp3 via bogem/id3v2, and reads
//          back tags/format info via dhowden/tag for every other extension
//          (applied=false, tagging.skipped — Go's ecosystem splits write
//          (id3v2, mp3-only) from read (dhowden/tag, broad format support),
//          so the tagger is explicit about that boundary instead of failing
//          silently the way a single mutagen-backed tagger would not need
//          to be).
// =============================================================================

package tagging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
	dhowdentag "github.com/dhowden/tag"

	"harmonydl/internal/hdm/model"
	"harmonydl/internal/logging"
)

// ID3Tagger is the default Tagger implementation.
type ID3Tagger struct{}

// NewID3Tagger returns a ready ID3Tagger.
func NewID3Tagger() *ID3Tagger {
	return &ID3Tagger{}
}

// ApplyTags writes artist/title/album/isrc/length for .mp3 files; for any
// other extension it reads back whatever tag/format info is available and
// reports applied=false.
func (t *ID3Tagger) ApplyTags(path string, item *model.DownloadItem) (Result, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	if ext != "mp3" {
		return t.readBack(path)
	}

	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s for tagging: %w", path, err)
	}
	defer tag.Close()

	tag.SetArtist(item.Artist)
	tag.SetTitle(item.Title)
	if item.Album != "" {
		tag.SetAlbum(item.Album)
	}
	if item.ISRC != "" {
		tag.AddTextFrame(tag.CommonID("ISRC"), id3v2.EncodingUTF8, item.ISRC)
	}
	if item.DurationSeconds != nil {
		lengthMs := int(*item.DurationSeconds * 1000)
		tag.AddTextFrame(tag.CommonID("Length"), id3v2.EncodingUTF8, fmt.Sprintf("%d", lengthMs))
	}

	if err := tag.Save(); err != nil {
		return Result{}, fmt.Errorf("failed to save ID3 tags for %s: %w", path, err)
	}

	result := Result{Applied: true, Codec: "mp3"}
	if item.Bitrate != nil {
		result.BitrateKbps = item.Bitrate
	}
	if item.DurationSeconds != nil {
		result.DurationSeconds = item.DurationSeconds
	}
	return result, nil
}

// readBack probes a non-mp3 file's existing tags/format via dhowden/tag,
// without writing anything. dhowden/tag exposes container format/file type
// but not bitrate/duration, so those fields stay nil here — reporting
// precisely what the library can determine rather than guessing.
func (t *ID3Tagger) readBack(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open %s for format probe: %w", path, err)
	}
	defer f.Close()

	meta, err := dhowdentag.ReadFrom(f)
	if err != nil {
		logging.Tagging().Debug("no readable tags for unsupported format", "path", path, "error", err)
		return Result{Applied: false, Codec: strings.TrimPrefix(filepath.Ext(path), ".")}, nil
	}

	return Result{
		Applied: false,
		Codec:   string(meta.FileType()),
	}, nil
}
