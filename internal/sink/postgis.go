package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/landuse-cli/internal/db"
)

// DefaultPostGISTable holds every layer written to PostGIS, keyed by layer
// name.
const DefaultPostGISTable = "landuse.layer_features"

// PostGIS writes layers into a shared feature table. Writing a layer
// replaces its previous rows in one transaction.
type PostGIS struct {
	pool  db.Pool
	table string
}

// NewPostGIS creates a PostGIS sink on table (DefaultPostGISTable if empty).
func NewPostGIS(pool db.Pool, table string) *PostGIS {
	if table == "" {
		table = DefaultPostGISTable
	}
	return &PostGIS{pool: pool, table: table}
}

// Migrate creates the schema, feature table and spatial index if needed.
func (p *PostGIS) Migrate(ctx context.Context) error {
	ident := db.Identifier(p.table)
	if len(ident) == 2 {
		if _, err := p.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", ident[:1].Sanitize())); err != nil {
			return eris.Wrapf(err, "postgis: create schema for %s", p.table)
		}
	}
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	layer TEXT NOT NULL,
	fid   BIGINT NOT NULL,
	props JSONB NOT NULL,
	geom  geometry NOT NULL,
	PRIMARY KEY (layer, fid)
)`, ident.Sanitize())); err != nil {
		return eris.Wrapf(err, "postgis: create table %s", p.table)
	}
	index := pgx.Identifier{strings.ReplaceAll(p.table, ".", "_") + "_geom_idx"}
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING gist (geom)",
		index.Sanitize(), ident.Sanitize())); err != nil {
		return eris.Wrapf(err, "postgis: create spatial index on %s", p.table)
	}
	return nil
}

// Write implements Sink. The returned location is "postgis:{table}/{layer}".
func (p *PostGIS) Write(ctx context.Context, l *Layer) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	rows := make([][]any, len(l.Features))
	for i, f := range l.Features {
		g, err := withSRID(f.Geom, l.CRS)
		if err != nil {
			return "", eris.Wrapf(err, "postgis: layer %s feature %d", l.Name, i)
		}
		data, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return "", eris.Wrapf(err, "postgis: encode layer %s feature %d", l.Name, i)
		}
		props := make(map[string]any, len(l.Columns))
		for j, c := range l.Columns {
			props[c.Name] = f.Values[j]
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return "", eris.Wrapf(err, "postgis: encode layer %s feature %d properties", l.Name, i)
		}
		rows[i] = []any{l.Name, int64(i), string(propsJSON), data}
	}

	n, err := db.StageInsert(ctx, p.pool, db.StageConfig{
		Table: p.table,
		Stage: []db.StageColumn{
			{Name: "layer", Type: "TEXT"},
			{Name: "fid", Type: "BIGINT"},
			{Name: "props", Type: "TEXT"},
			{Name: "wkb", Type: "BYTEA"},
		},
		Target:    []string{"layer", "fid", "props", "geom"},
		Select:    []string{`"layer"`, `"fid"`, `"props"::jsonb`, `ST_GeomFromEWKB("wkb")`},
		Delete:    "layer = $1",
		DeleteArg: []any{l.Name},
	}, rows)
	if err != nil {
		return "", eris.Wrapf(err, "postgis: write layer %s", l.Name)
	}

	loc := "postgis:" + p.table + "/" + l.Name
	zap.L().Info("layer written",
		zap.String("component", "sink.postgis"),
		zap.String("layer", l.Name),
		zap.String("location", loc),
		zap.Int64("rows", n),
	)
	return loc, nil
}
