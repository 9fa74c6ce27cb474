// Package access computes landuse accessibility for street network nodes.
package access

import (
	"context"
	"math"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/network"
)

// Computer joins a landuse set to a network, scoring every node for every
// category key and distance. The returned Scores also carry the node each
// landuse was assigned to.
type Computer interface {
	Compute(ctx context.Context, landuses *landuse.Set, categoryColumn string, keys []string, g *network.Graph, distances []float64) (*Scores, error)
}

// Column kinds.
const (
	Count    = "nw" // number of landuses within the distance
	Weighted = "wt" // sum of exp(-beta*d) with beta = 4/distance
)

// ColumnName returns the score column for a key, distance and kind, e.g.
// "cc_eating_200_wt".
func ColumnName(key string, distance float64, kind string) string {
	return "cc_" + key + "_" + strconv.FormatFloat(distance, 'f', -1, 64) + "_" + kind
}

// Beta returns the decay parameter for a distance threshold, so the weight
// falls to exp(-4) at the threshold.
func Beta(distance float64) float64 { return 4 / distance }

// Assignment records the network node a landuse was snapped to. Node is -1
// when the landuse lies farther from the network than the largest distance.
type Assignment struct {
	LanduseID string
	Category  string
	Node      int // index into Graph.Nodes
	NodeID    int64
	Snap      float64
}

// Scores holds per-node accessibility values.
type Scores struct {
	Keys        []string
	Distances   []float64
	Assignments []Assignment // in landuse row order

	keyIdx   map[string]int
	distIdx  map[float64]int
	count    [][][]float64 // [key][distance][node]
	weighted [][][]float64
}

func newScores(keys []string, distances []float64, nodes int) *Scores {
	s := &Scores{
		Keys:      append([]string{}, keys...),
		Distances: append([]float64{}, distances...),
		keyIdx:    make(map[string]int, len(keys)),
		distIdx:   make(map[float64]int, len(distances)),
		count:     make([][][]float64, len(keys)),
		weighted:  make([][][]float64, len(keys)),
	}
	for i, d := range distances {
		s.distIdx[d] = i
	}
	for k, key := range keys {
		s.keyIdx[key] = k
		s.count[k] = make([][]float64, len(distances))
		s.weighted[k] = make([][]float64, len(distances))
		for d := range distances {
			s.count[k][d] = make([]float64, nodes)
			s.weighted[k][d] = make([]float64, nodes)
		}
	}
	return s
}

// Columns lists every score column in key, distance, kind order.
func (s *Scores) Columns() []string {
	cols := make([]string, 0, len(s.Keys)*len(s.Distances)*2)
	for _, k := range s.Keys {
		for _, d := range s.Distances {
			cols = append(cols, ColumnName(k, d, Count), ColumnName(k, d, Weighted))
		}
	}
	return cols
}

// Value returns one score. Unknown keys or distances yield an error.
func (s *Scores) Value(key string, distance float64, kind string, node int) (float64, error) {
	k, ok := s.keyIdx[key]
	if !ok {
		return 0, eris.Errorf("access: unknown key %q", key)
	}
	d, ok := s.distIdx[distance]
	if !ok {
		return 0, eris.Errorf("access: unknown distance %g", distance)
	}
	var vals []float64
	switch kind {
	case Count:
		vals = s.count[k][d]
	case Weighted:
		vals = s.weighted[k][d]
	default:
		return 0, eris.Errorf("access: unknown kind %q", kind)
	}
	if node < 0 || node >= len(vals) {
		return 0, eris.Errorf("access: node %d out of range", node)
	}
	return vals[node], nil
}

// row returns a node's scores in Columns order.
func (s *Scores) row(node int) []float64 {
	out := make([]float64, 0, len(s.Keys)*len(s.Distances)*2)
	for k := range s.Keys {
		for d := range s.Distances {
			out = append(out, s.count[k][d][node], s.weighted[k][d][node])
		}
	}
	return out
}

func (s *Scores) add(key, node int, dist float64) {
	for d, limit := range s.Distances {
		if dist > limit {
			continue
		}
		s.count[key][d][node]++
		s.weighted[key][d][node] += math.Exp(-Beta(limit) * dist)
	}
}
