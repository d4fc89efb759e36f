package browser

// DefaultHistoryLimit bounds the number of remembered addresses.
const DefaultHistoryLimit = 100

// History is a back/forward address stack. Entries are rendered addresses;
// the engine re-derives all state from them on traversal.
type History struct {
	entries []string
	pos     int
	limit   int
}

// NewHistory creates an empty history. A limit of zero uses
// DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{pos: -1, limit: limit}
}

// Push appends addr after the current entry and drops every forward entry.
// Pushing the current address is a no-op.
func (h *History) Push(addr string) {
	if h.pos >= 0 && h.entries[h.pos] == addr {
		return
	}
	h.entries = append(h.entries[:h.pos+1], addr)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.pos = len(h.entries) - 1
}

// Replace overwrites the current entry, or pushes when the history is empty.
func (h *History) Replace(addr string) {
	if h.pos < 0 {
		h.Push(addr)
		return
	}
	h.entries[h.pos] = addr
}

// Current returns the current address.
func (h *History) Current() (string, bool) {
	if h.pos < 0 {
		return "", false
	}
	return h.entries[h.pos], true
}

// Back moves one entry back.
func (h *History) Back() (string, bool) {
	if h.pos <= 0 {
		return "", false
	}
	h.pos--
	return h.entries[h.pos], true
}

// Forward moves one entry forward.
func (h *History) Forward() (string, bool) {
	if h.pos < 0 || h.pos >= len(h.entries)-1 {
		return "", false
	}
	h.pos++
	return h.entries[h.pos], true
}

func (h *History) CanBack() bool    { return h.pos > 0 }
func (h *History) CanForward() bool { return h.pos >= 0 && h.pos < len(h.entries)-1 }

// Len returns the number of entries.
func (h *History) Len() int { return len(h.entries) }
