package rest

import (
	"context"
	"errors"
	"sync"

	"github.com/grabtube/grabtube/server/internal/catalog"
	"github.com/grabtube/grabtube/server/internal/manager"
	"github.com/grabtube/grabtube/server/internal/media"
)

var errUnknownItem = errors.New("unknown media item, resolve its url first")

// Service wraps the manager surface for the transport layer. Resolved items
// are cached so a task request can reference them by id without a second
// resolver round trip.
type Service struct {
	manager *manager.Manager
	catalog *catalog.Catalog

	mu       sync.Mutex
	resolved map[string]*media.Item
}

func NewService(m *manager.Manager, c *catalog.Catalog) *Service {
	return &Service{
		manager:  m,
		catalog:  c,
		resolved: make(map[string]*media.Item),
	}
}

// Resolve fetches metadata for one source URL and caches the item.
func (s *Service) Resolve(ctx context.Context, url string) (*media.Item, error) {
	item, err := s.catalog.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.resolved[item.Id] = item
	s.resolved[item.URL] = item
	s.mu.Unlock()

	return item, nil
}

// ResolvePlaylist expands a playlist into its entry URLs.
func (s *Service) ResolvePlaylist(ctx context.Context, url string) ([]string, error) {
	return s.catalog.ResolvePlaylist(ctx, url)
}

type addTaskRequest struct {
	ItemId       string `json:"item_id"` // id or url of a previously resolved item
	StreamId     string `json:"stream_id"`
	AudioOnly    bool   `json:"audio_only"`
	Subtitles    bool   `json:"subtitles"`
	SubtitleLang string `json:"subtitle_lang"`
	Start        bool   `json:"start"`
}

// AddTask queues a download for a previously resolved item, optionally
// starting it right away.
func (s *Service) AddTask(ctx context.Context, req addTaskRequest) (string, error) {
	s.mu.Lock()
	item, ok := s.resolved[req.ItemId]
	s.mu.Unlock()

	if !ok {
		return "", errUnknownItem
	}

	id := s.manager.AddTask(item, req.StreamId, req.AudioOnly, req.Subtitles, req.SubtitleLang)

	if req.Start {
		s.manager.StartTask(id)
	}

	return id, nil
}

func (s *Service) StartTask(id string)            { s.manager.StartTask(id) }
func (s *Service) StartAll()                      { s.manager.StartAll() }
func (s *Service) CancelTask(id string)           { s.manager.CancelTask(id) }
func (s *Service) RemoveTask(id string)           { s.manager.RemoveTask(id) }
func (s *Service) ClearCompleted()                { s.manager.ClearCompleted() }
func (s *Service) Tasks() []media.Task            { return s.manager.Tasks() }
func (s *Service) GetTask(id string) (media.Task, bool) { return s.manager.GetTask(id) }

type settingsRequest struct {
	Concurrency *int    `json:"concurrency,omitempty"`
	OutputDir   *string `json:"output_dir,omitempty"`
}

func (s *Service) ApplySettings(req settingsRequest) error {
	if req.Concurrency != nil {
		s.manager.SetConcurrencyLimit(*req.Concurrency)
	}
	if req.OutputDir != nil {
		if err := s.manager.SetOutputDirectory(*req.OutputDir); err != nil {
			return err
		}
	}
	return nil
}
