// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
}

// NewRouter wires the router around a handler.
func NewRouter(handler *Handler) *Router {
	return &Router{handler: handler}
}

// Setup configures all routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", router.handler.Status)
		r.Post("/sync", router.handler.TriggerSync)
	})

	return r
}
