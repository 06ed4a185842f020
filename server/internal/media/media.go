package media

import (
	"fmt"
	"strings"
)

// StreamDescriptor identifies one fetchable quality/format variant of a media
// item. The Id is an opaque handle the catalog accepts to re-request this
// exact stream. Immutable once resolved.
type StreamDescriptor struct {
	Id        string `json:"id"`
	Quality   string `json:"quality"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"` // bytes, 0 until known
	Composite bool   `json:"composite"`
	AudioOnly bool   `json:"audio_only"`
	Bitrate   string `json:"bitrate,omitempty"` // audio streams only

	// direct fetch URL, filled by the catalog and never serialized
	SourceURL string `json:"-"`
}

// Ext derives a file extension from the stream mime type.
func (s StreamDescriptor) Ext() string {
	if i := strings.LastIndex(s.MimeType, "/"); i >= 0 && i < len(s.MimeType)-1 {
		return s.MimeType[i+1:]
	}
	return "mp4"
}

// DisplayName is the human readable label shown by clients.
func (s StreamDescriptor) DisplayName() string {
	if s.AudioOnly {
		return fmt.Sprintf("Audio %s", s.Bitrate)
	}

	quality := s.Quality
	if quality == "" {
		quality = "Unknown"
	}

	format := strings.ToUpper(s.Ext())

	suffix := ""
	if !s.Composite {
		suffix = " (video only)"
	}

	if s.Size > 0 {
		return fmt.Sprintf("%s %s%s - %s", quality, format, suffix, FormatSize(s.Size))
	}
	return fmt.Sprintf("%s %s%s", quality, format, suffix)
}

// CaptionDescriptor identifies one caption track of a media item.
type CaptionDescriptor struct {
	Code string `json:"code"`
	Name string `json:"name"`

	SourceURL string `json:"-"`
}

// Item holds everything the catalog resolved for a single source URL.
// Created once, read-only afterwards.
type Item struct {
	URL       string              `json:"url"`
	Id        string              `json:"id"`
	Title     string              `json:"title"`
	Author    string              `json:"author"`
	Duration  int64               `json:"duration"` // seconds, 0 when unknown
	Thumbnail string              `json:"thumbnail"`
	Videos    []StreamDescriptor  `json:"videos"` // descending quality
	Audios    []StreamDescriptor  `json:"audios"` // descending bitrate
	Captions  []CaptionDescriptor `json:"captions"`
}

// Stream looks a descriptor up by its id across video and audio streams.
func (i *Item) Stream(id string) (StreamDescriptor, bool) {
	for _, s := range i.Videos {
		if s.Id == id {
			return s, true
		}
	}
	for _, s := range i.Audios {
		if s.Id == id {
			return s, true
		}
	}
	return StreamDescriptor{}, false
}

// BestAudio returns the highest bitrate audio-only stream.
// Audio streams are kept sorted by descending bitrate.
func (i *Item) BestAudio() (StreamDescriptor, bool) {
	if len(i.Audios) == 0 {
		return StreamDescriptor{}, false
	}
	return i.Audios[0], true
}

// Caption picks the track matching lang by exact or prefix match, falling
// back to the first available track.
func (i *Item) Caption(lang string) (CaptionDescriptor, bool) {
	if len(i.Captions) == 0 {
		return CaptionDescriptor{}, false
	}

	for _, c := range i.Captions {
		if c.Code == lang || strings.HasPrefix(c.Code, lang) {
			return c, true
		}
	}

	return i.Captions[0], true
}
