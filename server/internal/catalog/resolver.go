package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/grabtube/grabtube/server/internal/downloader"
	"github.com/grabtube/grabtube/server/internal/media"
)

// wire format of the resolver binary (`<resolver> <url> -J`)
type resolvedMetadata struct {
	Id        string           `json:"id"`
	Title     string           `json:"title"`
	Uploader  string           `json:"uploader"`
	Duration  int64            `json:"duration"`
	Thumbnail string           `json:"thumbnail"`
	Formats   []resolvedFormat `json:"formats"`
	Subtitles map[string][]struct {
		URL  string `json:"url"`
		Name string `json:"name"`
		Ext  string `json:"ext"`
	} `json:"subtitles"`
}

type resolvedFormat struct {
	FormatId   string  `json:"format_id"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution"`
	Height     int     `json:"height"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
	ABR        float64 `json:"abr"`
	Filesize   int64   `json:"filesize"`
	URL        string  `json:"url"`
}

type playlistMetadata struct {
	Type    string `json:"_type"`
	Entries []struct {
		URL string `json:"url"`
	} `json:"entries"`
}

// Resolve shells out to the resolver binary for JSON metadata and maps it to
// a read-only media item. Network or parsing failures surface as
// ErrSourceUnavailable with the tool's stderr attached.
func (c *Catalog) Resolve(ctx context.Context, url string) (*media.Item, error) {
	slog.Info("resolving url", slog.String("url", url))

	raw, err := c.runResolver(ctx, url, "-J", "--no-playlist")
	if err != nil {
		return nil, err
	}

	var meta resolvedMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrSourceUnavailable, err)
	}

	return mapItem(url, &meta), nil
}

// ResolvePlaylist expands a playlist URL into its entry URLs, deduplicated
// and with nested playlist links dropped.
func (c *Catalog) ResolvePlaylist(ctx context.Context, url string) ([]string, error) {
	slog.Info("resolving playlist", slog.String("url", url))

	raw, err := c.runResolver(ctx, url, "-J", "--flat-playlist")
	if err != nil {
		return nil, err
	}

	var meta playlistMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrSourceUnavailable, err)
	}

	if meta.Type != "playlist" {
		return []string{url}, nil
	}

	var urls []string
	for _, e := range meta.Entries {
		if e.URL == "" || strings.Contains(e.URL, "list=") {
			continue
		}
		if !slices.Contains(urls, e.URL) {
			urls = append(urls, e.URL)
		}
	}

	slog.Info("playlist resolved", slog.String("url", url), slog.Int("count", len(urls)))
	return urls, nil
}

func (c *Catalog) runResolver(ctx context.Context, url string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.resolverPath, append([]string{url}, args...)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", downloader.ErrSourceUnavailable, err)
	}

	var bufferedStderr bytes.Buffer
	go io.Copy(&bufferedStderr, stderr)

	raw, err := io.ReadAll(stdout)
	if err != nil {
		return nil, err
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %s", downloader.ErrSourceUnavailable, bufferedStderr.String())
	}

	return raw, nil
}

func mapItem(url string, meta *resolvedMetadata) *media.Item {
	item := &media.Item{
		URL:       url,
		Id:        meta.Id,
		Title:     meta.Title,
		Author:    meta.Uploader,
		Duration:  meta.Duration,
		Thumbnail: meta.Thumbnail,
	}

	for _, f := range meta.Formats {
		if f.URL == "" {
			continue
		}

		audioOnly := f.VCodec == "" || f.VCodec == "none"

		if audioOnly {
			if f.ACodec == "" || f.ACodec == "none" {
				continue // storyboard or other non-av format
			}
			item.Audios = append(item.Audios, media.StreamDescriptor{
				Id:        f.FormatId,
				MimeType:  "audio/" + f.Ext,
				Size:      f.Filesize,
				AudioOnly: true,
				Bitrate:   fmt.Sprintf("%.0fkbps", f.ABR),
				SourceURL: f.URL,
			})
			continue
		}

		item.Videos = append(item.Videos, media.StreamDescriptor{
			Id:        f.FormatId,
			Quality:   qualityLabel(f),
			MimeType:  "video/" + f.Ext,
			Size:      f.Filesize,
			Composite: f.ACodec != "" && f.ACodec != "none",
			SourceURL: f.URL,
		})
	}

	// video streams by descending quality, audio by descending bitrate
	sort.SliceStable(item.Videos, func(i, j int) bool {
		return qualityRank(item.Videos[i].Quality) > qualityRank(item.Videos[j].Quality)
	})
	sort.SliceStable(item.Audios, func(i, j int) bool {
		return bitrateRank(item.Audios[i].Bitrate) > bitrateRank(item.Audios[j].Bitrate)
	})

	for code, tracks := range meta.Subtitles {
		if len(tracks) == 0 {
			continue
		}
		item.Captions = append(item.Captions, media.CaptionDescriptor{
			Code:      code,
			Name:      tracks[0].Name,
			SourceURL: tracks[0].URL,
		})
	}
	sort.Slice(item.Captions, func(i, j int) bool {
		return item.Captions[i].Code < item.Captions[j].Code
	})

	return item
}

func qualityLabel(f resolvedFormat) string {
	if f.Height > 0 {
		return fmt.Sprintf("%dp", f.Height)
	}
	return f.Resolution
}

func qualityRank(quality string) int {
	n, _ := strconv.Atoi(strings.TrimSuffix(quality, "p"))
	return n
}

func bitrateRank(bitrate string) int {
	n, _ := strconv.Atoi(strings.TrimSuffix(bitrate, "kbps"))
	return n
}
