// =============================================================================
// FILE: internal/hdm/tagging/tagger.go
// PURPOSE: Tagger interface and result type. ID3Tagger (id3_tagger.go) is the
//          concrete implementation the pipeline uses.
// =============================================================================

package tagging

import "harmonydl/internal/hdm/model"

// Result is what applying tags to a file reports back to the pipeline.
type Result struct {
	Applied         bool
	Codec           string
	BitrateKbps     *int
	DurationSeconds *float64
}

// Tagger writes metadata tags to a downloaded file and reports what it
// could determine about the file's audio properties.
type Tagger interface {
	ApplyTags(path string, item *model.DownloadItem) (Result, error)
}
