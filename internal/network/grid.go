package network

import "math"

// grid buckets node indexes into square cells for nearest-node lookups.
type grid struct {
	minX, minY float64
	cell       float64
	cols, rows int
	cells      [][]int
}

func newGrid(nodes []Node) *grid {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		minX, maxX = math.Min(minX, n.X), math.Max(maxX, n.X)
		minY, maxY = math.Min(minY, n.Y), math.Max(maxY, n.Y)
	}
	w, h := maxX-minX, maxY-minY
	// Aim for a few nodes per cell.
	cell := math.Sqrt(w * h / math.Max(float64(len(nodes))/4, 1))
	if cell <= 0 || math.IsNaN(cell) {
		cell = math.Max(math.Max(w, h), 1)
	}
	gr := &grid{
		minX: minX,
		minY: minY,
		cell: cell,
		cols: int(w/cell) + 1,
		rows: int(h/cell) + 1,
	}
	gr.cells = make([][]int, gr.cols*gr.rows)
	for i, n := range nodes {
		c, r := gr.locate(n.X, n.Y)
		gr.cells[r*gr.cols+c] = append(gr.cells[r*gr.cols+c], i)
	}
	return gr
}

func (gr *grid) locate(x, y float64) (int, int) {
	c := int((x - gr.minX) / gr.cell)
	r := int((y - gr.minY) / gr.cell)
	return min(max(c, 0), gr.cols-1), min(max(r, 0), gr.rows-1)
}

// nearest scans rings of cells around (x, y). Cells beyond ring r are at
// least r cells away, also for queries outside the grid.
func (gr *grid) nearest(nodes []Node, x, y float64) (int, float64) {
	best, bestD := -1, math.Inf(1)
	c0, r0 := gr.locate(x, y)
	limit := max(gr.cols, gr.rows)
	for ring := 0; ring <= limit; ring++ {
		for r := r0 - ring; r <= r0+ring; r++ {
			if r < 0 || r >= gr.rows {
				continue
			}
			for c := c0 - ring; c <= c0+ring; c++ {
				if c < 0 || c >= gr.cols {
					continue
				}
				if r != r0-ring && r != r0+ring && c != c0-ring && c != c0+ring {
					continue
				}
				for _, i := range gr.cells[r*gr.cols+c] {
					d := math.Hypot(nodes[i].X-x, nodes[i].Y-y)
					if d < bestD || (d == bestD && i < best) {
						best, bestD = i, d
					}
				}
			}
		}
		if best >= 0 && bestD <= float64(ring)*gr.cell {
			break
		}
	}
	return best, bestD
}
