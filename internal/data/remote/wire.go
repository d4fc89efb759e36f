package remote

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/colonyops/kennel/internal/core/entity"
	"github.com/colonyops/kennel/internal/core/query"
)

// API paths served by internal/server.
const (
	PathCollections = "/api/v1/collections"
	PathDictionary  = "/api/v1/dictionaries"
)

// Page request query parameters.
const (
	ParamOffset     = "offset"
	ParamPageSize   = "page_size"
	ParamSort       = "sort"
	ParamDirection  = "dir"
	ParamTieBreaker = "tie"
	ParamSearch     = "search"
	ParamID         = "id"
	ParamLabel      = "label"

	// FilterPrefix marks filter parameters: filter.<field>=<id>.
	FilterPrefix = "filter."
)

// EntitiesPath returns the page endpoint of a collection.
func EntitiesPath(collection string) string {
	return PathCollections + "/" + url.PathEscape(collection) + "/entities"
}

// EntityPath returns the single-record endpoint.
func EntityPath(collection, id string) string {
	return EntitiesPath(collection) + "/" + url.PathEscape(id)
}

// QueryPath returns the address parse endpoint of a collection.
func QueryPath(collection string) string {
	return PathCollections + "/" + url.PathEscape(collection) + "/query"
}

// LookupPath returns the dictionary lookup endpoint of a table.
func LookupPath(table string) string {
	return PathDictionary + "/" + url.PathEscape(table) + "/lookup"
}

// EncodePageRequest renders req as query parameters. The collection travels
// in the path.
func EncodePageRequest(req entity.PageRequest) url.Values {
	v := url.Values{}
	if req.Cursor.Offset > 0 {
		v.Set(ParamOffset, strconv.Itoa(req.Cursor.Offset))
	}
	if req.PageSize > 0 {
		v.Set(ParamPageSize, strconv.Itoa(req.PageSize))
	}
	if req.Sort.Field != "" {
		v.Set(ParamSort, req.Sort.Field)
		v.Set(ParamDirection, string(req.Sort.Direction))
	}
	if req.Sort.TieBreaker != "" {
		v.Set(ParamTieBreaker, req.Sort.TieBreaker)
	}
	if req.Search != "" {
		v.Set(ParamSearch, req.Search)
	}
	for k, val := range req.Filters {
		v.Set(FilterPrefix+k, val)
	}
	return v
}

// DecodePageRequest is the inverse of EncodePageRequest. Malformed numbers
// decode as zero.
func DecodePageRequest(collection string, v url.Values) entity.PageRequest {
	req := entity.PageRequest{
		Collection: collection,
		Search:     v.Get(ParamSearch),
		Sort: entity.Sort{
			Field:      v.Get(ParamSort),
			Direction:  entity.ParseDirection(v.Get(ParamDirection)),
			TieBreaker: v.Get(ParamTieBreaker),
		},
	}
	if n, err := strconv.Atoi(v.Get(ParamOffset)); err == nil && n > 0 {
		req.Cursor.Offset = n
	}
	if n, err := strconv.Atoi(v.Get(ParamPageSize)); err == nil && n > 0 {
		req.PageSize = n
	}
	for k, vals := range v {
		field, ok := strings.CutPrefix(k, FilterPrefix)
		if !ok || field == "" || len(vals) == 0 {
			continue
		}
		if req.Filters == nil {
			req.Filters = map[string]string{}
		}
		req.Filters[field] = vals[0]
	}
	return req
}

// CollectionInfo describes one collection served by the API.
type CollectionInfo struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	SearchSlug  string   `json:"search_slug"`
	DefaultView string   `json:"default_view"`
	Views       []string `json:"views"`
}

// ParseResult is the response of the address parse endpoint.
type ParseResult struct {
	State      query.State `json:"state"`
	View       string      `json:"view"`
	Rewritten  bool        `json:"rewritten"`
	Canonical  string      `json:"canonical"`
	Warnings   []string    `json:"warnings,omitempty"`
	ResolveErr string      `json:"resolve_error,omitempty"`
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
