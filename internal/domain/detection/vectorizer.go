package detection

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/turtacn/TerraSight-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TerraSight-Intelligence/pkg/errors"
	"github.com/turtacn/TerraSight-Intelligence/pkg/types/geo"
)

// Vectorizer converts a labeled change raster into filtered change polygons
// and computes the aggregate statistics of a run.
type Vectorizer struct {
	minAreaM2 float64
	log       logging.Logger
}

// NewVectorizer constructs a Vectorizer discarding polygons below minAreaM2.
func NewVectorizer(minAreaM2 float64, log logging.Logger) *Vectorizer {
	return &Vectorizer{minAreaM2: minAreaM2, log: log.Named("vectorizer")}
}

// Vectorize extracts 4-connected components of equal label from the grid and
// emits one ChangeRecord per component whose area passes the minimum-area
// filter.  Component area is cellCount x cellSize^2; the polygon ring is the
// component's bounding rectangle in WGS84.
//
// Cancellation is checked once per row so a timed-out context aborts the
// scan promptly; the caller decides whether to retry at a coarser resolution.
func (v *Vectorizer) Vectorize(ctx context.Context, grid *LabelGrid) ([]geo.ChangeRecord, error) {
	if grid == nil || grid.Width == 0 || grid.Height == 0 {
		return nil, nil
	}

	visited := make([]bool, grid.Width*grid.Height)
	var records []geo.ChangeRecord

	for y := 0; y < grid.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeComputationTimeout, "vectorization cancelled")
		}
		for x := 0; x < grid.Width; x++ {
			idx := y*grid.Width + x
			if visited[idx] || grid.Labels[idx] == LabelNone {
				continue
			}
			comp, err := v.floodFill(ctx, grid, visited, x, y)
			if err != nil {
				return nil, err
			}
			areaM2 := float64(comp.cells) * grid.CellSizeM * grid.CellSizeM
			if areaM2 < v.minAreaM2 {
				continue
			}
			records = append(records, geo.ChangeRecord{
				ID:     uuid.NewString(),
				Type:   grid.Labels[idx].ChangeType(),
				AreaM2: areaM2,
				Ring:   v.ring(grid, comp),
			})
		}
	}

	return records, nil
}

type component struct {
	cells                  int
	minX, minY, maxX, maxY int
}

// floodFill walks one 4-connected component of equal label starting at
// (x, y), marking cells visited and tracking the bounding extent.  An
// explicit stack keeps the walk iterative; recursion depth would otherwise
// scale with component size.
func (v *Vectorizer) floodFill(ctx context.Context, grid *LabelGrid, visited []bool, x, y int) (component, error) {
	label := grid.At(x, y)
	comp := component{minX: x, minY: y, maxX: x, maxY: y}
	stack := [][2]int{{x, y}}
	visited[y*grid.Width+x] = true

	for len(stack) > 0 {
		if len(stack)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return comp, errors.Wrap(err, errors.ErrCodeComputationTimeout, "vectorization cancelled")
			}
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := cur[0], cur[1]

		comp.cells++
		if cx < comp.minX {
			comp.minX = cx
		}
		if cy < comp.minY {
			comp.minY = cy
		}
		if cx > comp.maxX {
			comp.maxX = cx
		}
		if cy > comp.maxY {
			comp.maxY = cy
		}

		for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := cx+d[0], cy+d[1]
			if nx < 0 || ny < 0 || nx >= grid.Width || ny >= grid.Height {
				continue
			}
			nidx := ny*grid.Width + nx
			if visited[nidx] || grid.Labels[nidx] != label {
				continue
			}
			visited[nidx] = true
			stack = append(stack, [2]int{nx, ny})
		}
	}

	return comp, nil
}

// ring converts a component's cell-space bounding rectangle to a closed
// WGS84 ring.
func (v *Vectorizer) ring(grid *LabelGrid, comp component) []geo.Point {
	b := grid.BBox
	lonPerCell := (b.MaxLon - b.MinLon) / float64(grid.Width)
	latPerCell := (b.MaxLat - b.MinLat) / float64(grid.Height)

	// Row 0 sits at the northern edge.
	west := b.MinLon + float64(comp.minX)*lonPerCell
	east := b.MinLon + float64(comp.maxX+1)*lonPerCell
	north := b.MaxLat - float64(comp.minY)*latPerCell
	south := b.MaxLat - float64(comp.maxY+1)*latPerCell

	return []geo.Point{
		{Lon: west, Lat: north},
		{Lon: east, Lat: north},
		{Lon: east, Lat: south},
		{Lon: west, Lat: south},
		{Lon: west, Lat: north},
	}
}

// Downsample halves the grid resolution factor times by majority vote over
// each 2x2 block (ties resolved by the highest-priority label present).  It
// backs the single coarse-resolution retry after a vectorization timeout.
func Downsample(grid *LabelGrid, factor int) *LabelGrid {
	if grid == nil || factor < 2 {
		return grid
	}
	w := grid.Width / factor
	h := grid.Height / factor
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	out := &LabelGrid{
		Width:     w,
		Height:    h,
		CellSizeM: grid.CellSizeM * float64(factor),
		BBox:      grid.BBox,
		Labels:    make([]Label, w*h),
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var counts [4]int
			for dy := 0; dy < factor; dy++ {
				for dx := 0; dx < factor; dx++ {
					sx, sy := x*factor+dx, y*factor+dy
					if sx < grid.Width && sy < grid.Height {
						counts[grid.At(sx, sy)]++
					}
				}
			}
			best := LabelNone
			bestCount := 0
			// Iterating in priority order makes ties deterministic:
			// development beats road-candidate beats clearing.
			for _, l := range []Label{LabelDevelopment, LabelRoadCandidate, LabelClearing} {
				if counts[l] > bestCount {
					best = l
					bestCount = counts[l]
				}
			}
			out.Set(x, y, best)
		}
	}
	return out
}

// Aggregate computes the run summary: total polygon count, summed area, and
// a histogram keyed by change type.
func Aggregate(records []geo.ChangeRecord) (count int, totalAreaM2 float64, byType map[geo.ChangeType]int) {
	byType = make(map[geo.ChangeType]int)
	for _, r := range records {
		count++
		totalAreaM2 += r.AreaM2
		byType[r.Type]++
	}
	return count, totalAreaM2, byType
}

// summaryLabel renders the histogram for log lines.
func summaryLabel(byType map[geo.ChangeType]int) string {
	return fmt.Sprintf("dev=%d road=%d clearing=%d",
		byType[geo.ChangeDevelopment], byType[geo.ChangeRoadCandidate], byType[geo.ChangeClearing])
}
