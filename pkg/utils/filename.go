package utils

import (
	"strings"

	"github.com/SysAdminDoc/Stock-Video-Collector-sub000/internal/entity"
)

var unsafeRunes = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "",
	"<", "", ">", "", "|", "", "\x00", "",
)

// SafeFilename strips filesystem-unsafe runes and trims the result to
// a sane length for cross-platform paths.
func SafeFilename(s string) string {
	s = unsafeRunes.Replace(s)
	s = strings.Join(strings.Fields(s), " ") // collapse whitespace
	s = strings.Trim(s, ". ")
	if len(s) > 150 {
		s = s[:150]
	}
	return s
}

// RenderFilename expands the user's filename template for an asset.
// Supported tokens: {title}, {asset_id}/{clip_id}, {creator},
// {collection}, {resolution}. The asset id is always appended when
// the template omits it, so names stay unique.
func RenderFilename(template string, a *entity.Asset) string {
	if template == "" {
		template = "{title}"
	}
	r := strings.NewReplacer(
		"{title}", a.Title,
		"{asset_id}", a.AssetID,
		"{clip_id}", a.AssetID,
		"{creator}", a.Creator,
		"{collection}", a.Collection,
		"{resolution}", a.Resolution,
	)
	name := SafeFilename(r.Replace(template))
	if name == "" {
		name = a.AssetID
	}
	hasID := strings.Contains(template, "{asset_id}") || strings.Contains(template, "{clip_id}")
	if !hasID && name != a.AssetID {
		name = strings.TrimRight(name, " -_") + "_" + a.AssetID
	}
	return name
}
