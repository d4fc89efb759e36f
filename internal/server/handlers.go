package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/colonyops/kennel/internal/core/config"
	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/data/remote"
)

type ctxKey struct{}

func (s *Server) requireCollection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "collection")
		for _, c := range s.collections {
			if c.ID == id {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, c)))
				return
			}
		}
		writeError(w, http.StatusNotFound, "UNKNOWN_COLLECTION", "unknown collection: "+id)
	})
}

func collectionFrom(r *http.Request) config.Collection {
	c, _ := r.Context().Value(ctxKey{}).(config.Collection)
	return c
}

// GET /api/v1/collections
func (s *Server) handleCollections(w http.ResponseWriter, _ *http.Request) {
	out := make([]remote.CollectionInfo, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, remote.CollectionInfo{
			ID:          c.ID,
			Title:       c.Title,
			SearchSlug:  c.SearchSlug,
			DefaultView: c.DefaultView,
			Views:       c.ViewIDs(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/collections/{collection}/entities
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	col := collectionFrom(r)
	req := remote.DecodePageRequest(col.ID, r.URL.Query())

	page, err := s.provider.GetPage(r.Context(), req)
	if err != nil {
		s.providerError(w, r, err)
		return
	}
	if page.Entities == nil {
		page.Entities = []entity.Record{}
	}
	writeJSON(w, http.StatusOK, page)
}

// GET /api/v1/collections/{collection}/entities/{id}
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	col := collectionFrom(r)
	id := chi.URLParam(r, "id")

	rec, err := s.provider.FindByID(r.Context(), col.ID, id)
	if err != nil {
		s.providerError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no record "+id+" in "+col.ID)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/v1/dictionaries/{table}/lookup?id=|label=
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	q := r.URL.Query()
	m := entity.Matcher{ID: q.Get(remote.ParamID), Label: q.Get(remote.ParamLabel)}
	if m.ID == "" && m.Label == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "id or label is required")
		return
	}

	rec, err := s.provider.FindDictionaryValue(r.Context(), table, m)
	if err != nil {
		s.providerError(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "no dictionary value in "+table)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /api/v1/collections/{collection}/query?<address query>
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	col := collectionFrom(r)
	sync := s.syncs[col.ID]

	parsed, err := sync.Parse(r.Context(), r.URL.Query())
	if err != nil {
		s.providerError(w, r, err)
		return
	}

	canonical, err := sync.Serialize(r.Context(), parsed.State, parsed.View)
	if err != nil {
		s.providerError(w, r, err)
		return
	}

	res := remote.ParseResult{
		State:     parsed.State,
		View:      parsed.View,
		Rewritten: parsed.Rewritten,
		Canonical: canonical.Encode(),
		Warnings:  parsed.Warnings,
	}
	if parsed.ResolveErr != nil {
		res.ResolveErr = parsed.ResolveErr.Error()
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) providerError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", "request cancelled")
		return
	}
	if errors.Is(err, entity.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("provider request failed")
	writeError(w, http.StatusInternalServerError, "PROVIDER_ERROR", err.Error())
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, remote.ErrorBody{Error: message, Code: code})
}
