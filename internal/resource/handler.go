package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vyrodovalexey/mug/internal/observability"
	"github.com/vyrodovalexey/mug/internal/router"
	"github.com/vyrodovalexey/mug/internal/store"
)

// Route patterns served by Handler. GET and DELETE by id share one
// parameter segment so both methods resolve to the same trie node.
const (
	PathResource     = "/api/resource"
	PathResourceByID = `/api/resource/:id[^[A-Za-z0-9_-]+$]`
	PathResources    = "/api/resources"
)

// MaxBodyBytes bounds a POST body.
const MaxBodyBytes = 1 << 20

// Response is the envelope of every resource API response.
type Response struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

// Handler serves resources from a store.
type Handler struct {
	store  store.Store
	logger observability.Logger
}

// NewHandler creates a handler backed by s.
func NewHandler(s store.Store, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{store: s, logger: logger}
}

// Register mounts the resource routes on r. Extra middlewares apply to
// every route.
func (h *Handler) Register(r *router.Router, middlewares ...router.Middleware) error {
	routes := []struct {
		method  string
		path    string
		handler router.HandlerFunc
	}{
		{http.MethodGet, PathResource, h.Query},
		{http.MethodPost, PathResource, h.Create},
		{http.MethodGet, PathResourceByID, h.Get},
		{http.MethodDelete, PathResourceByID, h.Delete},
		{http.MethodGet, PathResources, h.List},
	}

	for _, route := range routes {
		if err := r.Handle(route.method, route.path, route.handler, middlewares...); err != nil {
			return err
		}
	}
	return nil
}

// Query looks a resource up by the id query parameter. A missing id is
// answered with ok=false; an unknown id with ok=true and null data.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request, _ router.RouteContext) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.write(w, r, http.StatusOK, Response{OK: false})
		return
	}

	res, err := h.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.write(w, r, http.StatusOK, Response{OK: true})
	case err != nil:
		h.fail(w, r, "query", err)
	default:
		h.write(w, r, http.StatusOK, Response{OK: true, Data: res})
	}
}

// Create stores the resource in the request body.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request, _ router.RouteContext) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil || len(body) == 0 {
		h.write(w, r, http.StatusBadRequest, Response{OK: false})
		return
	}

	var res store.Resource
	if err := json.Unmarshal(body, &res); err != nil || res.Validate() != nil {
		h.logger.WithContext(r.Context()).Debug("rejected resource body",
			observability.Int("size", len(body)),
		)
		h.write(w, r, http.StatusBadRequest, Response{OK: false})
		return
	}

	if err := h.store.Put(r.Context(), res); err != nil {
		h.fail(w, r, "create", err)
		return
	}

	h.write(w, r, http.StatusOK, Response{OK: true})
}

// Get returns the resource named by the id path parameter.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request, rc router.RouteContext) {
	res, err := h.store.Get(r.Context(), rc.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.write(w, r, http.StatusNotFound, Response{OK: false})
	case err != nil:
		h.fail(w, r, "get", err)
	default:
		h.write(w, r, http.StatusOK, Response{OK: true, Data: res})
	}
}

// Delete removes the resource named by the id path parameter.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request, rc router.RouteContext) {
	err := h.store.Delete(r.Context(), rc.Param("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.write(w, r, http.StatusNotFound, Response{OK: false})
	case err != nil:
		h.fail(w, r, "delete", err)
	default:
		h.write(w, r, http.StatusOK, Response{OK: true})
	}
}

// List returns every resource ordered by id.
func (h *Handler) List(w http.ResponseWriter, r *http.Request, _ router.RouteContext) {
	all, err := h.store.GetAll(r.Context())
	if err != nil {
		h.fail(w, r, "list", err)
		return
	}
	h.write(w, r, http.StatusOK, Response{OK: true, Data: all})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.WithContext(r.Context()).Error("resource operation failed",
		observability.String("operation", op),
		observability.Error(err),
	)

	status := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	h.write(w, r, status, Response{OK: false})
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithContext(r.Context()).Warn("failed to write response", observability.Error(err))
	}
}
