package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/grabtube/grabtube/server/internal/events"
)

// Entity is one archived completed download.
type Entity struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) (*Repository, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS archive (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			source     TEXT NOT NULL,
			path       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Archive(ctx context.Context, e *Entity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO archive (id, title, source, path, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.Id, e.Title, e.Source, e.Path, e.CreatedAt,
	)
	return err
}

func (r *Repository) All(ctx context.Context) ([]Entity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, source, path, created_at FROM archive ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entities := make([]Entity, 0)

	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.Id, &e.Title, &e.Source, &e.Path, &e.CreatedAt); err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}

	return entities, rows.Err()
}

func (r *Repository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM archive`)
	return err
}

// TaskSource looks task metadata up for archiving, decoupling the archive
// from the manager's concrete type.
type TaskSource interface {
	TaskInfo(id string) (title, source string, ok bool)
}

// Register subscribes the repository to completed events so every finished
// download lands in the archive.
func Register(repo *Repository, fabric *events.Fabric, tasks TaskSource) error {
	return fabric.SubscribeCompleted(func(e events.Completed) {
		title, source, ok := tasks.TaskInfo(e.TaskId)
		if !ok {
			return
		}

		slog.Info("archiving completed download",
			slog.String("title", title),
			slog.String("source", source),
		)

		err := repo.Archive(context.Background(), &Entity{
			Id:        e.TaskId,
			Title:     title,
			Source:    source,
			Path:      e.Path,
			CreatedAt: time.Now(),
		})
		if err != nil {
			slog.Error("failed archiving download", slog.Any("err", err))
		}
	})
}

func ApplyRouter(repo *Repository) func(chi.Router) {
	return func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			entities, err := repo.All(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(entities)
		})

		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			if err := repo.Clear(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	}
}
