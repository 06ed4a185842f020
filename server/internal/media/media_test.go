package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItem() *Item {
	return &Item{
		URL:   "https://example.com/watch?v=abc",
		Id:    "abc",
		Title: "Test Video",
		Videos: []StreamDescriptor{
			{Id: "137", Quality: "1080p", MimeType: "video/mp4"},
			{Id: "22", Quality: "720p", MimeType: "video/mp4", Composite: true},
		},
		Audios: []StreamDescriptor{
			{Id: "251", MimeType: "audio/webm", AudioOnly: true, Bitrate: "160kbps"},
			{Id: "250", MimeType: "audio/webm", AudioOnly: true, Bitrate: "70kbps"},
		},
		Captions: []CaptionDescriptor{
			{Code: "de", Name: "German"},
			{Code: "en-US", Name: "English (US)"},
		},
	}
}

func TestItemStreamLookup(t *testing.T) {
	item := testItem()

	s, ok := item.Stream("22")
	require.True(t, ok)
	assert.True(t, s.Composite)

	s, ok = item.Stream("251")
	require.True(t, ok)
	assert.True(t, s.AudioOnly)

	_, ok = item.Stream("999")
	assert.False(t, ok)
}

func TestItemBestAudio(t *testing.T) {
	item := testItem()

	best, ok := item.BestAudio()
	require.True(t, ok)
	assert.Equal(t, "251", best.Id)

	_, ok = (&Item{}).BestAudio()
	assert.False(t, ok)
}

func TestItemCaption(t *testing.T) {
	item := testItem()

	c, ok := item.Caption("de")
	require.True(t, ok)
	assert.Equal(t, "de", c.Code)

	// prefix match
	c, ok = item.Caption("en")
	require.True(t, ok)
	assert.Equal(t, "en-US", c.Code)

	// fallback to first available
	c, ok = item.Caption("fr")
	require.True(t, ok)
	assert.Equal(t, "de", c.Code)

	_, ok = (&Item{}).Caption("en")
	assert.False(t, ok)
}

func TestStreamDescriptorExt(t *testing.T) {
	assert.Equal(t, "mp4", StreamDescriptor{MimeType: "video/mp4"}.Ext())
	assert.Equal(t, "webm", StreamDescriptor{MimeType: "audio/webm"}.Ext())
	assert.Equal(t, "mp4", StreamDescriptor{}.Ext())
}

func TestStreamDescriptorDisplayName(t *testing.T) {
	audio := StreamDescriptor{AudioOnly: true, Bitrate: "128kbps"}
	assert.Equal(t, "Audio 128kbps", audio.DisplayName())

	video := StreamDescriptor{Quality: "1080p", MimeType: "video/mp4", Size: 1024 * 1024}
	assert.Equal(t, "1080p MP4 (video only) - 1.0 MB", video.DisplayName())

	composite := StreamDescriptor{Quality: "720p", MimeType: "video/mp4", Composite: true}
	assert.Equal(t, "720p MP4", composite.DisplayName())
}
