// Package network holds the street network used by the accessibility join:
// an undirected graph of OSM highway nodes in the working CRS.
package network

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/crs"
)

// Way is an OSM highway way: its node IDs in order with their EPSG:4326
// lon/lat coordinates.
type Way struct {
	ID      int64
	Highway string
	Nodes   []int64
	Coords  []geom.Coord
}

// Node is a network vertex. Live nodes lie inside the study area.
type Node struct {
	ID   int64
	X, Y float64
	Live bool
}

// Edge is a half-edge to another node index.
type Edge struct {
	To     int
	Length float64
}

// Graph is an undirected street network. Node indexes are stable for the
// life of the graph.
type Graph struct {
	CRS   int
	Nodes []Node

	adj   [][]Edge
	index map[int64]int
	grid  *grid
}

// Build assembles a graph from highway ways. Coordinates are projected with
// tf; each consecutive node pair becomes an edge whose length is the planar
// distance in the target CRS. Ways with mismatched or too few nodes are
// skipped.
func Build(ways []Way, tf crs.Transform) (*Graph, error) {
	log := zap.L().With(zap.String("component", "network.build"))

	sorted := make([]Way, len(ways))
	copy(sorted, ways)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	g := &Graph{CRS: tf.To(), index: make(map[int64]int)}
	skipped := 0
	for _, w := range sorted {
		if len(w.Nodes) < 2 || len(w.Nodes) != len(w.Coords) {
			skipped++
			continue
		}
		prev := -1
		for i, id := range w.Nodes {
			idx, err := g.addNode(id, w.Coords[i], tf)
			if err != nil {
				return nil, eris.Wrapf(err, "network: way %d", w.ID)
			}
			if prev >= 0 && prev != idx {
				g.link(prev, idx)
			}
			prev = idx
		}
	}
	if skipped > 0 {
		log.Warn("skipped malformed ways", zap.Int("count", skipped))
	}
	if len(g.Nodes) == 0 {
		return nil, eris.New("network: no usable highway ways")
	}
	g.grid = newGrid(g.Nodes)

	log.Debug("network built",
		zap.Int("ways", len(sorted)-skipped),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", g.EdgeCount()),
	)
	return g, nil
}

func (g *Graph) addNode(id int64, c geom.Coord, tf crs.Transform) (int, error) {
	if idx, ok := g.index[id]; ok {
		return idx, nil
	}
	if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return 0, eris.Errorf("network: node %d has invalid coordinate", id)
	}
	x, y := tf.Apply(c[0], c[1])
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, eris.Errorf("network: node %d projects outside %d", id, tf.To())
	}
	idx := len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{ID: id, X: x, Y: y})
	g.adj = append(g.adj, nil)
	g.index[id] = idx
	return idx, nil
}

func (g *Graph) link(a, b int) {
	for _, e := range g.adj[a] {
		if e.To == b {
			return
		}
	}
	d := math.Hypot(g.Nodes[a].X-g.Nodes[b].X, g.Nodes[a].Y-g.Nodes[b].Y)
	g.adj[a] = append(g.adj[a], Edge{To: b, Length: d})
	g.adj[b] = append(g.adj[b], Edge{To: a, Length: d})
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Nodes) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, es := range g.adj {
		n += len(es)
	}
	return n / 2
}

// Edges returns the half-edges leaving node i.
func (g *Graph) Edges(i int) []Edge { return g.adj[i] }

// Index returns the node index of an OSM node ID.
func (g *Graph) Index(id int64) (int, bool) {
	idx, ok := g.index[id]
	return idx, ok
}

// MarkLive flags the nodes for which live reports true and returns how many
// are live.
func (g *Graph) MarkLive(live func(x, y float64) bool) int {
	n := 0
	for i := range g.Nodes {
		g.Nodes[i].Live = live(g.Nodes[i].X, g.Nodes[i].Y)
		if g.Nodes[i].Live {
			n++
		}
	}
	return n
}

// Nearest returns the index of the node closest to (x, y) and its distance.
// Ties go to the lower index.
func (g *Graph) Nearest(x, y float64) (int, float64) {
	if g.grid == nil {
		g.grid = newGrid(g.Nodes)
	}
	return g.grid.nearest(g.Nodes, x, y)
}
