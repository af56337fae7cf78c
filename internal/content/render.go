package content

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ismaildakrory/immich-memories-notify/internal/immich"
	"github.com/ismaildakrory/immich-memories-notify/internal/retry"
	logx "github.com/ismaildakrory/immich-memories-notify/pkg/logx"
)

// Fixed lines used when a template set is empty.
const (
	defaultMemoryLine = "You have memories from {year}!"
	defaultPersonLine = "Remember this photo of {person_name}?"
)

// Notification is rendered title and body text, ready for delivery.
type Notification struct {
	Title string
	Body  string
}

// Render turns a selection into notification text: a random template from
// the matching set with placeholders substituted, optional location and
// album lines, and the video / test title prefixes. Enrichment lookups
// that fail are simply left out.
func (s *Selector) Render(ctx context.Context, sel Selection, test bool) Notification {
	video := sel.Asset.IsVideo()

	var body, title string
	switch sel.Kind {
	case KindPerson:
		body = s.template(s.cfg.VideoPersonMessages, s.cfg.PersonMessages, video, defaultPersonLine)
		body = strings.ReplaceAll(body, "{person_name}", sel.Person)
		title = "Photos of " + sel.Person
	default:
		body = s.template(s.cfg.VideoMessages, s.cfg.Messages, video, defaultMemoryLine)
		body = strings.ReplaceAll(body, "{year}", strconv.Itoa(sel.Year))
		body = strings.ReplaceAll(body, "{years_ago}", strconv.Itoa(s.now().Year()-sel.Year))
		title = fmt.Sprintf("Memories from %d", sel.Year)
	}

	if line := s.locationLine(ctx, sel); line != "" {
		body += "\n" + line
	}
	if line := s.albumLine(ctx, sel); line != "" {
		body += "\n" + line
	}

	if video && s.cfg.Settings.VideoEmojiEnabled() {
		title = "🎥 " + title
	}
	if test {
		title = "[TEST] " + title
	}
	return Notification{Title: title, Body: body}
}

// template draws a random line: the video set when the asset is a video
// and that set is non-empty, else the plain set, else the fixed default.
func (s *Selector) template(videoSet, plainSet []string, video bool, def string) string {
	set := plainSet
	if video && len(videoSet) > 0 {
		set = videoSet
	}
	if len(set) == 0 {
		return def
	}
	return set[s.rng.Intn(len(set))]
}

// locationLine builds the "📍 City, Country" suffix from asset EXIF.
func (s *Selector) locationLine(ctx context.Context, sel Selection) string {
	if !s.cfg.Settings.LocationEnabled() {
		return ""
	}
	detail := s.assetDetail(ctx, sel)
	if detail == nil || detail.ExifInfo == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if detail.ExifInfo.City != "" {
		parts = append(parts, detail.ExifInfo.City)
	}
	if detail.ExifInfo.Country != "" {
		parts = append(parts, detail.ExifInfo.Country)
	}
	if len(parts) == 0 {
		return ""
	}
	return "📍 " + strings.Join(parts, ", ")
}

// albumLine names the first album containing the asset.
func (s *Selector) albumLine(ctx context.Context, sel Selection) string {
	if !s.cfg.Settings.AlbumEnabled() {
		return ""
	}
	var albums []immich.Album
	err := retry.Run(ctx, s.log, s.cfg.Settings.RetryPolicy(), "fetch asset albums", func(ctx context.Context) error {
		var err error
		albums, err = s.lib.AssetAlbums(ctx, sel.Asset.ID)
		return err
	})
	if err != nil {
		s.log.Debug("album lookup unavailable", logx.String("asset", sel.Asset.ID), logx.Err(err))
		return ""
	}
	for _, al := range albums {
		if al.AlbumName != "" {
			return "📔 " + al.AlbumName
		}
	}
	return ""
}

// assetDetail reuses the record fetched during tiering when present.
func (s *Selector) assetDetail(ctx context.Context, sel Selection) *immich.AssetDetail {
	if sel.Detail != nil {
		return sel.Detail
	}
	var detail immich.AssetDetail
	err := retry.Run(ctx, s.log, s.cfg.Settings.RetryPolicy(), "fetch asset exif", func(ctx context.Context) error {
		var err error
		detail, err = s.lib.AssetDetail(ctx, sel.Asset.ID)
		return err
	})
	if err != nil {
		s.log.Debug("asset detail unavailable", logx.String("asset", sel.Asset.ID), logx.Err(err))
		return nil
	}
	return &detail
}
