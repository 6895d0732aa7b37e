package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/graphnotes/internal/index"
	"github.com/starford/graphnotes/internal/models"
)

// nodeID reads the {id} route parameter. Node ids that are vault paths
// arrive with their slashes encoded.
func nodeID(r *http.Request) string {
	return unescapeParam(chi.URLParam(r, "id"))
}

func edgeID(w http.ResponseWriter, r *http.Request) (models.EdgeID, bool) {
	id, err := models.ParseEdgeID(unescapeParam(chi.URLParam(r, "id")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return models.EdgeID{}, false
	}
	return id, true
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the knowledge graph, optionally filtered
//	@Tags			graph
//	@Produce		json
//	@Param			tags	query		string	false	"Comma-separated tags; keep nodes carrying any"
//	@Param			exclude	query		string	false	"Comma-separated tags; drop nodes carrying any"
//	@Param			title	query		string	false	"Case-insensitive title substring"
//	@Param			after	query		string	false	"RFC 3339 lower bound on modified"
//	@Param			before	query		string	false	"RFC 3339 upper bound on modified"
//	@Success		200		{object}	GraphResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r.URL.Query().Get)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid time: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Graph(r.Context(), f))
}

// Stats handles GET /api/graph/stats.
//
//	@Summary		Graph statistics
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	models.Stats
//	@Security		BearerAuth
//	@Router			/graph/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

// Unresolved handles GET /api/graph/unresolved.
//
//	@Summary		References that matched no note
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	UnresolvedResponse
//	@Security		BearerAuth
//	@Router			/graph/unresolved [get]
func (h *Handler) Unresolved(w http.ResponseWriter, r *http.Request) {
	links, err := h.svc.Unresolved(r.Context())
	if err != nil {
		h.writeError(w, "unresolved links", err)
		return
	}
	if links == nil {
		links = []index.UnresolvedLink{}
	}
	writeJSON(w, http.StatusOK, UnresolvedResponse{Links: links})
}

// Node handles GET /api/graph/nodes/{id}.
//
//	@Summary		Get one graph node
//	@Tags			graph
//	@Produce		json
//	@Param			id	path		string	true	"Node id, URL-encoded"
//	@Success		200	{object}	models.Node
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id} [get]
func (h *Handler) Node(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	n, err := h.svc.Node(r.Context(), id)
	if err != nil {
		h.writeError(w, "get node", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Neighbors handles GET /api/graph/nodes/{id}/neighbors.
//
//	@Summary		Nodes adjacent in either direction
//	@Tags			graph
//	@Produce		json
//	@Param			id	path		string	true	"Node id, URL-encoded"
//	@Success		200	{object}	NodesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id}/neighbors [get]
func (h *Handler) Neighbors(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	nodes, err := h.svc.Neighbors(r.Context(), id)
	if err != nil {
		h.writeError(w, "neighbors", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, NodesResponse{Nodes: nodes})
}

// Incoming handles GET /api/graph/nodes/{id}/incoming.
//
//	@Summary		Edges pointing at a node
//	@Tags			graph
//	@Produce		json
//	@Param			id	path		string	true	"Node id, URL-encoded"
//	@Success		200	{object}	EdgesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id}/incoming [get]
func (h *Handler) Incoming(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	edges, err := h.svc.Incoming(r.Context(), id)
	if err != nil {
		h.writeError(w, "incoming edges", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, EdgesResponse{Edges: edges})
}

// Outgoing handles GET /api/graph/nodes/{id}/outgoing.
//
//	@Summary		Edges leaving a node
//	@Tags			graph
//	@Produce		json
//	@Param			id	path		string	true	"Node id, URL-encoded"
//	@Success		200	{object}	EdgesResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id}/outgoing [get]
func (h *Handler) Outgoing(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	edges, err := h.svc.Outgoing(r.Context(), id)
	if err != nil {
		h.writeError(w, "outgoing edges", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, EdgesResponse{Edges: edges})
}

// Subgraph handles GET /api/graph/nodes/{id}/subgraph.
//
//	@Summary		Neighbourhood of a node
//	@Tags			graph
//	@Produce		json
//	@Param			id		path		string	true	"Node id, URL-encoded"
//	@Param			depth	query		int		false	"Hops from the node, clamped to the configured maximum"
//	@Success		200		{object}	GraphResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id}/subgraph [get]
func (h *Handler) Subgraph(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	depth := h.defaultDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be an integer"))
			return
		}
		depth = d
	}
	sub, err := h.svc.Subgraph(r.Context(), id, depth)
	if err != nil {
		h.writeError(w, "subgraph", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// SetPosition handles PUT /api/graph/nodes/{id}/position.
//
//	@Summary		Store a layout position on a node
//	@Tags			graph
//	@Accept			json
//	@Param			id		path	string			true	"Node id, URL-encoded"
//	@Param			body	body	PositionRequest	true	"Opaque position value"
//	@Success		204		"Position stored"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/nodes/{id}/position [put]
func (h *Handler) SetPosition(w http.ResponseWriter, r *http.Request) {
	id := nodeID(r)
	var req PositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetPosition(r.Context(), id, req.Position); err != nil {
		h.writeError(w, "set position", err, slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateLink handles POST /api/graph/edges.
//
//	@Summary		Add or replace an explicit link
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateLinkRequest	true	"Link definition"
//	@Success		201		{object}	models.Edge
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/edges [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	e, err := h.svc.UpsertLink(r.Context(), req.Source, req.definition())
	if err != nil {
		h.writeError(w, "create link", err, slog.String("source", req.Source), slog.String("target", req.Target))
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// DeleteLink handles DELETE /api/graph/edges/{id}.
//
//	@Summary		Remove an explicit link
//	@Tags			graph
//	@Param			id	path	string	true	"Edge id, URL-encoded"
//	@Success		204	"Link removed"
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/edges/{id} [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	id, ok := edgeID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteLink(r.Context(), id); err != nil {
		h.writeError(w, "delete link", err, slog.String("edge", id.String()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateLinkAppearance handles PATCH /api/graph/edges/{id}/appearance.
//
//	@Summary		Change how an edge is drawn
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Edge id, URL-encoded"
//	@Param			body	body		models.Appearance	true	"Appearance"
//	@Success		200		{object}	models.Edge
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/graph/edges/{id}/appearance [patch]
func (h *Handler) UpdateLinkAppearance(w http.ResponseWriter, r *http.Request) {
	id, ok := edgeID(w, r)
	if !ok {
		return
	}
	var a models.Appearance
	if !decodeJSON(w, r, &a) {
		return
	}
	e, err := h.svc.UpdateLinkAppearance(r.Context(), id, a)
	if err != nil {
		h.writeError(w, "update appearance", err, slog.String("edge", id.String()))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Rebuild handles POST /api/graph/rebuild.
//
//	@Summary		Recompile the graph and index from the vault
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	noteservice.RebuildResult
//	@Security		BearerAuth
//	@Router			/graph/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Rebuild(r.Context())
	if err != nil {
		h.writeError(w, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
