// Package web wires the HTTP boundary: routing, request parsing, and
// response rendering over the projection repository.
package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/facet-dev/facet/internal/web/middleware"
	"github.com/facet-dev/facet/internal/web/response"
)

// RouterConfig controls route mounting.
type RouterConfig struct {
	// APIPrefix is prepended to all resource routes, e.g. "/api".
	APIPrefix string
}

// NewRouter builds the chi router with the standard middleware chain and
// all resource and admin routes mounted.
func NewRouter(handler *Handler, log *zap.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.RenderNotFound(w, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, errMethodNotAllowed)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		response.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(prefixOrRoot(cfg.APIPrefix), func(api chi.Router) {
		api.Route("/admin", func(admin chi.Router) {
			admin.Get("/projections", handler.Projections)
			admin.Post("/cache/invalidate", handler.InvalidateCache)
			admin.Post("/cache/reload", handler.ReloadCache)
		})

		api.Route("/{projection}/{entity}", func(res chi.Router) {
			res.Get("/", handler.List)
			res.Post("/", handler.Create)
			res.Get("/{id}", handler.Get)
			res.Put("/{id}", handler.Update)
		})
	})

	return r
}

var errMethodNotAllowed = errors.New("method not allowed")

func prefixOrRoot(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}
