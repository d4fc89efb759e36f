package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeWindow_Unmeasured(t *testing.T) {
	w := ComputeWindow(Params{ContainerSize: 0, EntityCount: 100, ItemSize: 10})
	assert.False(t, w.Measured)
	assert.True(t, w.Empty())
}

func TestComputeWindow_ZeroEntities(t *testing.T) {
	w := ComputeWindow(Params{ContainerSize: 300, ItemSize: 10})
	assert.True(t, w.Measured)
	assert.True(t, w.Empty())
	assert.Equal(t, 0, w.TotalSize)
}

func TestComputeWindow_ZeroEntitiesWithMore(t *testing.T) {
	w := ComputeWindow(Params{ContainerSize: 300, ItemSize: 10, HasMore: true})
	require.Len(t, w.Rows, 1)
	assert.True(t, w.Rows[0].Loading)
	assert.Equal(t, 10, w.TotalSize)
}

func TestComputeWindow_ListRange(t *testing.T) {
	w := ComputeWindow(Params{
		ScrollOffset:  250,
		ContainerSize: 100,
		EntityCount:   1000,
		ItemSize:      50,
		Overscan:      2,
	})

	require.NotEmpty(t, w.Rows)
	// visible rows 5..6, ceil((250+100)/50)=7, overscan 2 => [3, 9]
	assert.Equal(t, 3, w.Rows[0].Index)
	assert.Equal(t, 9, w.Rows[len(w.Rows)-1].Index)
	assert.Equal(t, 150, w.Rows[0].Offset)
	assert.Equal(t, 3, w.Rows[0].Start)
	assert.Equal(t, 4, w.Rows[0].End)
	assert.Equal(t, 50000, w.TotalSize)
}

func TestComputeWindow_GridRowsSliceEntities(t *testing.T) {
	w := ComputeWindow(Params{
		ContainerSize: 1000,
		EntityCount:   10,
		ItemSize:      100,
		Columns:       4,
		Grid:          true,
	})

	require.Len(t, w.Rows, 3)
	assert.Equal(t, [2]int{0, 4}, [2]int{w.Rows[0].Start, w.Rows[0].End})
	assert.Equal(t, [2]int{4, 8}, [2]int{w.Rows[1].Start, w.Rows[1].End})
	assert.Equal(t, [2]int{8, 10}, [2]int{w.Rows[2].Start, w.Rows[2].End})
	assert.Equal(t, 3, w.TotalRows)
}

func TestComputeWindow_ColumnChangeRemapsRows(t *testing.T) {
	base := Params{ContainerSize: 100, ScrollOffset: 100, EntityCount: 40, ItemSize: 100, Grid: true}

	wide := base
	wide.Columns = 4
	narrow := base
	narrow.Columns = 2

	ww := ComputeWindow(wide)
	nw := ComputeWindow(narrow)

	require.NotEmpty(t, ww.Rows)
	require.NotEmpty(t, nw.Rows)
	assert.Equal(t, 1, ww.Rows[0].Index)
	assert.Equal(t, 4, ww.Rows[0].Start)
	assert.Equal(t, 2, nw.Rows[0].Start)
	assert.Equal(t, 10, ww.TotalRows)
	assert.Equal(t, 20, nw.TotalRows)
}

func TestComputeWindow_TrailingLoadingRow(t *testing.T) {
	w := ComputeWindow(Params{
		ScrollOffset:  0,
		ContainerSize: 500,
		EntityCount:   3,
		ItemSize:      100,
		HasMore:       true,
	})

	require.Len(t, w.Rows, 4)
	last := w.Rows[3]
	assert.True(t, last.Loading)
	assert.Equal(t, 3, last.Start)
	assert.Equal(t, 3, last.End)
	assert.Equal(t, 400, w.TotalSize)
}

func TestComputeWindow_ScrolledPastEnd(t *testing.T) {
	w := ComputeWindow(Params{ScrollOffset: 10_000, ContainerSize: 100, EntityCount: 5, ItemSize: 10})
	require.NotEmpty(t, w.Rows)
	assert.Equal(t, 4, w.Rows[len(w.Rows)-1].Index)
}

func TestComputeWindow_SupersetOfVisibleRows(t *testing.T) {
	for _, item := range []int{1, 7, 48} {
		for _, n := range []int{1, 13, 200} {
			for _, cols := range []int{1, 3} {
				for _, container := range []int{1, 50, 333} {
					for offset := 0; offset < n*item; offset += item*3 + 1 {
						p := Params{
							ScrollOffset:  offset,
							ContainerSize: container,
							EntityCount:   n,
							ItemSize:      item,
							Overscan:      1,
							Columns:       cols,
							Grid:          cols > 1,
						}
						w := ComputeWindow(p)

						mounted := map[int]bool{}
						for _, r := range w.Rows {
							assert.GreaterOrEqual(t, r.Index, 0)
							assert.Less(t, r.Index, w.TotalRows)
							mounted[r.Index] = true
						}

						// every row intersecting [offset, offset+container) must be mounted
						for row := 0; row < w.TotalRows; row++ {
							top, bottom := row*item, (row+1)*item
							if bottom > offset && top < offset+container {
								assert.Truef(t, mounted[row], "row %d not mounted for %+v", row, p)
							}
						}
					}
				}
			}
		}
	}
}

func TestRowForEntity(t *testing.T) {
	assert.Equal(t, 7, RowForEntity(7, 1, false))
	assert.Equal(t, 7, RowForEntity(7, 3, false))
	assert.Equal(t, 2, RowForEntity(7, 3, true))
	assert.Equal(t, 0, RowForEntity(0, 4, true))
}

func TestScrollIntoView(t *testing.T) {
	tests := []struct {
		name   string
		offset int
		row    int
		want   int
	}{
		{name: "already visible", offset: 100, row: 2, want: 100},
		{name: "above viewport", offset: 500, row: 1, want: 50},
		{name: "below viewport", offset: 0, row: 10, want: 350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrollIntoView(tt.offset, 200, 50, tt.row))
		})
	}
}

func TestMaxOffset(t *testing.T) {
	assert.Equal(t, 800, MaxOffset(1000, 200))
	assert.Equal(t, 0, MaxOffset(100, 200))
}
