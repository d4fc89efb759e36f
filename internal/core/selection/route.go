package selection

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// FullscreenSegment is the path suffix that renders the selected entity as
// the primary content.
const FullscreenSegment = "fullscreen"

// Route is a parsed address: /{collection}[/{segment}[/fullscreen]]?query.
type Route struct {
	Collection string
	Segment    string
	Fullscreen bool
	Query      url.Values
}

// ParseRoute parses an address. The leading slash is optional.
func ParseRoute(raw string) (Route, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Route{}, fmt.Errorf("parse address: %w", err)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return Route{}, errors.New("parse address: missing collection")
	}
	if len(parts) > 3 || (len(parts) == 3 && parts[2] != FullscreenSegment) {
		return Route{}, fmt.Errorf("parse address: unexpected path %q", u.Path)
	}

	r := Route{Collection: parts[0], Query: u.Query()}
	if len(parts) > 1 {
		r.Segment = parts[1]
	}
	r.Fullscreen = len(parts) == 3
	return r, nil
}

// MustParseRoute is ParseRoute for literals.
func MustParseRoute(raw string) Route {
	r, err := ParseRoute(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// String renders the address. Query keys are sorted.
func (r Route) String() string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(url.PathEscape(r.Collection))
	if r.Segment != "" {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(r.Segment))
		if r.Fullscreen {
			b.WriteString("/" + FullscreenSegment)
		}
	}
	if q := r.Query.Encode(); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// WithSegment returns a copy pointing at segment. An empty segment closes the
// selection and drops fullscreen.
func (r Route) WithSegment(segment string) Route {
	out := r.clone()
	out.Segment = segment
	if segment == "" {
		out.Fullscreen = false
	}
	return out
}

// WithQuery returns a copy carrying q.
func (r Route) WithQuery(q url.Values) Route {
	out := r.clone()
	out.Query = cloneValues(q)
	return out
}

// Equal compares two routes by their rendered form.
func (r Route) Equal(o Route) bool { return r.String() == o.String() }

func (r Route) clone() Route {
	out := r
	out.Query = cloneValues(r.Query)
	return out
}

func cloneValues(q url.Values) url.Values {
	if q == nil {
		return url.Values{}
	}
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
