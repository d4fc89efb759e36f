package viewport

// Params are the inputs of one window computation. All sizes share the host's
// unit (pixels, terminal lines, ...).
type Params struct {
	ScrollOffset  int
	ContainerSize int
	EntityCount   int
	ItemSize      int
	Overscan      int
	Columns       int
	Grid          bool
	// HasMore appends one synthetic loading row that reserves layout space.
	HasMore bool
}

// Row is one mounted row. Start/End index the entity slice it renders; a
// loading row has Start == End == EntityCount.
type Row struct {
	Index   int
	Offset  int
	Size    int
	Start   int
	End     int
	Loading bool
}

// Window is the set of rows to mount plus the total scrollable extent.
type Window struct {
	Rows      []Row
	TotalRows int
	TotalSize int
	// Measured is false until the container has a non-zero size.
	Measured bool
}

// Empty reports whether nothing should be rendered.
func (w Window) Empty() bool { return len(w.Rows) == 0 }

// ComputeWindow returns the rows that must be mounted for a scroll position.
// No row-to-entity mapping survives between calls, so a change in column
// count can never render entities from a stale mapping.
func ComputeWindow(p Params) Window {
	if p.ContainerSize <= 0 {
		return Window{}
	}

	item := p.ItemSize
	if item <= 0 {
		item = 1
	}
	cols := 1
	if p.Grid && p.Columns > 1 {
		cols = p.Columns
	}
	overscan := max(p.Overscan, 0)
	n := max(p.EntityCount, 0)

	dataRows := n
	if p.Grid {
		dataRows = ceilDiv(n, cols)
	}
	totalRows := dataRows
	if p.HasMore {
		totalRows++
	}

	w := Window{TotalRows: totalRows, TotalSize: totalRows * item, Measured: true}
	if totalRows == 0 {
		return w
	}

	offset := max(p.ScrollOffset, 0)
	first := offset/item - overscan
	last := ceilDiv(offset+p.ContainerSize, item) + overscan
	first = clamp(first, 0, totalRows-1)
	last = clamp(last, 0, totalRows-1)
	if first > last {
		first = last
	}

	w.Rows = make([]Row, 0, last-first+1)
	for i := first; i <= last; i++ {
		row := Row{Index: i, Offset: i * item, Size: item}
		if i < dataRows {
			row.Start = i * cols
			row.End = min(row.Start+cols, n)
		} else {
			row.Start, row.End, row.Loading = n, n, true
		}
		w.Rows = append(w.Rows, row)
	}
	return w
}

// RowForEntity returns the row index that renders the entity at index.
func RowForEntity(index, columns int, grid bool) int {
	if !grid || columns <= 1 {
		return index
	}
	return index / columns
}

// ScrollIntoView returns the smallest scroll adjustment that makes row fully
// visible inside a container of the given size.
func ScrollIntoView(offset, containerSize, itemSize, row int) int {
	if itemSize <= 0 {
		itemSize = 1
	}
	top := row * itemSize
	bottom := top + itemSize
	switch {
	case top < offset:
		return top
	case bottom > offset+containerSize:
		return max(bottom-containerSize, 0)
	}
	return offset
}

// MaxOffset returns the largest meaningful scroll offset for a window.
func MaxOffset(totalSize, containerSize int) int {
	return max(totalSize-containerSize, 0)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
