package access

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landuse-cli/internal/network"
	"github.com/sells-group/landuse-cli/internal/sink"
)

// NodesLayer builds the persisted node layer: live nodes only, with their OSM
// ID and every score column.
func NodesLayer(name string, g *network.Graph, s *Scores) *sink.Layer {
	l := &sink.Layer{
		Name: name,
		CRS:  g.CRS,
		Columns: []sink.Column{
			{Name: "node_id", Type: sink.Integer},
			{Name: "live", Type: sink.Boolean},
		},
	}
	for _, c := range s.Columns() {
		l.Columns = append(l.Columns, sink.Column{Name: c, Type: sink.Real})
	}
	for i, n := range g.Nodes {
		if !n.Live {
			continue
		}
		vals := []any{n.ID, true}
		for _, v := range s.row(i) {
			vals = append(vals, v)
		}
		l.Features = append(l.Features, sink.Feature{
			Geom:   geom.NewPointFlat(geom.XY, []float64{n.X, n.Y}).SetSRID(g.CRS),
			Values: vals,
		})
	}
	return l
}
