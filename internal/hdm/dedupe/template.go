// =============================================================================
// FILE: internal/hdm/dedupe/template.go
// PURPOSE: move_template rendering. A literal placeholder scan rather than
//          text/template, because the allowed placeholder set is fixed and
//          any unknown token must be a fatal ConfigError — simplest to
//          detect with a direct scan rather than a template-execution error.
// =============================================================================

package dedupe

import (
	"strings"

	"harmonydl/internal/hdm/model"
)

// TemplateVars are the values substituted into a move_template.
type TemplateVars struct {
	Artist    string
	Album     string
	Title     string
	DedupeKey string
	BatchID   string
	ItemID    string
	Extension string
}

var placeholderOrder = []string{
	"{artist}", "{album}", "{title}", "{dedupe_key}", "{batch_id}", "{item_id}", "{extension}",
}

// Render substitutes vars into tpl, sanitizing each substituted value as a
// path component. Falls back to "Unknown Artist"/"Unknown Album"/"Track" for
// blank artist/album/title, per spec.md §4.5. Returns a *model.ConfigError
// if tpl references an unknown placeholder.
func Render(tpl string, vars TemplateVars) (string, error) {
	if err := validatePlaceholders(tpl); err != nil {
		return "", err
	}

	artist := orDefault(vars.Artist, "Unknown Artist")
	album := orDefault(vars.Album, "Unknown Album")
	title := orDefault(vars.Title, "Track")
	ext := vars.Extension
	if ext == "" {
		ext = "bin"
	}

	replacer := strings.NewReplacer(
		"{artist}", SanitizeComponent(artist),
		"{album}", SanitizeComponent(album),
		"{title}", SanitizeComponent(title),
		"{dedupe_key}", SanitizeComponent(vars.DedupeKey),
		"{batch_id}", SanitizeComponent(vars.BatchID),
		"{item_id}", SanitizeComponent(vars.ItemID),
		"{extension}", SanitizeComponent(strings.ToLower(ext)),
	)
	return replacer.Replace(tpl), nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// validatePlaceholders scans tpl for "{...}" tokens, rejecting any that
// aren't in the fixed placeholder set.
func validatePlaceholders(tpl string) error {
	i := 0
	for i < len(tpl) {
		open := strings.IndexByte(tpl[i:], '{')
		if open < 0 {
			break
		}
		open += i
		closeIdx := strings.IndexByte(tpl[open:], '}')
		if closeIdx < 0 {
			return &model.ConfigError{Reason: "move_template has an unterminated placeholder"}
		}
		closeIdx += open
		token := tpl[open : closeIdx+1]
		if !isKnownPlaceholder(token) {
			return &model.ConfigError{Reason: "move_template has unknown placeholder " + token}
		}
		i = closeIdx + 1
	}
	return nil
}

func isKnownPlaceholder(token string) bool {
	for _, p := range placeholderOrder {
		if p == token {
			return true
		}
	}
	return false
}

// SanitizeComponent strips path separators and control characters from a
// single path segment and trims surrounding whitespace. Stricter than the
// teacher's filename cleanup (internal/model.FileCleanup), since this value
// becomes a path *segment*, not a whole filename: '/' and '\\' must never
// survive, or a malicious/weird artist name could escape the destination
// template's directory structure.
func SanitizeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '/' || r == '\\':
			continue
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	return strings.TrimSpace(out)
}
