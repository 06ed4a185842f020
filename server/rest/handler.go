package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/grabtube/grabtube/server/internal/downloader"
	"github.com/grabtube/grabtube/server/sys"
)

type Handler struct {
	service *Service
}

type urlRequest struct {
	URL string `json:"url"`
}

func (h *Handler) Resolve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		item, err := h.service.Resolve(r.Context(), req.URL)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, downloader.ErrSourceUnavailable) {
				status = http.StatusBadGateway
			}
			http.Error(w, err.Error(), status)
			return
		}

		json.NewEncoder(w).Encode(item)
	}
}

func (h *Handler) ResolvePlaylist() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req urlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		urls, err := h.service.ResolvePlaylist(r.Context(), req.URL)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{"urls": urls})
	}
}

func (h *Handler) AddTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		id, err := h.service.AddTask(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": id})
	}
}

func (h *Handler) ListTasks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(h.service.Tasks())
	}
}

func (h *Handler) GetTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := h.service.GetTask(chi.URLParam(r, "id"))
		if !ok {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(task)
	}
}

func (h *Handler) StartTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.service.StartTask(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *Handler) StartAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.service.StartAll()
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *Handler) CancelTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.service.CancelTask(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusAccepted)
	}
}

func (h *Handler) RemoveTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.service.RemoveTask(chi.URLParam(r, "id"))
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) ClearCompleted() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.service.ClearCompleted()
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) ApplySettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := h.service.ApplySettings(req); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) FreeSpace() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		free, err := sys.FreeSpace()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]uint64{"free": free})
	}
}
