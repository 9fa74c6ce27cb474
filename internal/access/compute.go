package access

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/network"
)

// NetworkComputer assigns each landuse to its nearest network node and
// spreads it over every node within the largest distance along the network.
// A landuse's distance to a node is the snap distance to its assigned node
// plus the shortest path from there.
type NetworkComputer struct{}

var _ Computer = NetworkComputer{}

type placement struct {
	key  int
	snap float64
}

// Compute implements Computer.
func (NetworkComputer) Compute(ctx context.Context, landuses *landuse.Set, categoryColumn string, keys []string, g *network.Graph, distances []float64) (*Scores, error) {
	log := zap.L().With(zap.String("component", "access.compute"))

	if err := validate(landuses, categoryColumn, keys, g, distances); err != nil {
		return nil, err
	}
	scores := newScores(keys, distances, g.Len())
	maxDist := slices.Max(distances)

	// Group landuses by assigned node, keeping row order within a node.
	byNode := make(map[int][]placement)
	for _, row := range landuses.Rows {
		k, ok := scores.keyIdx[row.Category]
		if !ok {
			return nil, &landuse.SchemaViolation{Category: row.Category, Reason: "landuse category not among accessibility keys"}
		}
		if row.Geom == nil || row.Geom.Empty() {
			return nil, eris.Errorf("access: landuse %s has no geometry", row.ID)
		}
		node, snap := g.Nearest(row.Geom.X(), row.Geom.Y())
		a := Assignment{LanduseID: row.ID, Category: row.Category, Node: -1, Snap: snap}
		if node >= 0 && snap <= maxDist {
			a.Node, a.NodeID = node, g.Nodes[node].ID
			byNode[node] = append(byNode[node], placement{key: k, snap: snap})
		}
		scores.Assignments = append(scores.Assignments, a)
	}

	nodes := make([]int, 0, len(byNode))
	for n := range byNode {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)

	for _, src := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "access: compute cancelled")
		}
		group := byNode[src]
		minSnap := group[0].snap
		for _, p := range group[1:] {
			minSnap = min(minSnap, p.snap)
		}
		for _, r := range g.Within(src, maxDist-minSnap) {
			for _, p := range group {
				scores.add(p.key, r.Node, r.Dist+p.snap)
			}
		}
	}

	log.Debug("accessibility computed",
		zap.Int("landuses", landuses.Len()),
		zap.Int("sources", len(nodes)),
		zap.Int("nodes", g.Len()),
	)
	return scores, nil
}

func validate(landuses *landuse.Set, categoryColumn string, keys []string, g *network.Graph, distances []float64) error {
	switch {
	case landuses == nil:
		return eris.New("access: nil landuse set")
	case g == nil || g.Len() == 0:
		return eris.New("access: empty network")
	case landuses.CRS != g.CRS:
		return eris.Errorf("access: landuses in EPSG:%d but network in EPSG:%d", landuses.CRS, g.CRS)
	case categoryColumn != landuse.CategoryColumn:
		return &landuse.SchemaViolation{Reason: "unknown category column " + categoryColumn}
	case len(keys) == 0:
		return &landuse.SchemaViolation{Reason: "no accessibility keys"}
	case len(distances) == 0:
		return eris.New("access: no distances")
	}
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			return &landuse.SchemaViolation{Category: k, Reason: "empty or duplicate accessibility key"}
		}
		seen[k] = true
	}
	dists := make(map[float64]bool, len(distances))
	for _, d := range distances {
		if !(d > 0) || dists[d] {
			return eris.Errorf("access: distance %g must be positive and unique", d)
		}
		dists[d] = true
	}
	return nil
}
