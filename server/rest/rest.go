package rest

import (
	"github.com/go-chi/chi/v5"
	middlewares "github.com/grabtube/grabtube/server/middleware"
)

func ApplyRouter(args *ContainerArgs) func(chi.Router) {
	var (
		svc = ProvideService(args)
		h   = ProvideHandler(svc)
	)

	return func(r chi.Router) {
		r.Use(middlewares.ApplyAuthenticationByConfig)

		r.Post("/resolve", h.Resolve())
		r.Post("/resolve/playlist", h.ResolvePlaylist())

		r.Get("/tasks", h.ListTasks())
		r.Post("/tasks", h.AddTask())
		r.Get("/tasks/{id}", h.GetTask())
		r.Post("/tasks/{id}/start", h.StartTask())
		r.Post("/tasks/start-all", h.StartAll())
		r.Post("/tasks/{id}/cancel", h.CancelTask())
		r.Delete("/tasks/{id}", h.RemoveTask())
		r.Delete("/tasks/completed", h.ClearCompleted())

		r.Patch("/settings", h.ApplySettings())
		r.Get("/freespace", h.FreeSpace())
	}
}
