package sink

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/landuse-cli/internal/crs"
)

// GeoPackage application id ("GPKG") and version 1.2.0.
const (
	gpkgApplicationID = 0x47504B47
	gpkgUserVersion   = 10200
)

// GeoPackage writes each layer to {Dir}/{layer}.gpkg, replacing any
// previous file of the same name.
type GeoPackage struct {
	Dir string
	Now func() time.Time
}

// NewGeoPackage creates a GeoPackage sink rooted at dir.
func NewGeoPackage(dir string) *GeoPackage {
	return &GeoPackage{Dir: dir, Now: time.Now}
}

// Path returns the file a layer is written to.
func (g *GeoPackage) Path(layer string) string {
	return filepath.Join(g.Dir, layer+".gpkg")
}

// Write implements Sink.
func (g *GeoPackage) Write(ctx context.Context, l *Layer) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "gpkg: create dir %s", g.Dir)
	}

	// Build next to the target and rename, so a failed write leaves the
	// previous artifact intact.
	path := g.Path(l.Name)
	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	if err := g.write(ctx, tmp, l); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", eris.Wrapf(err, "gpkg: replace %s", path)
	}

	zap.L().Info("layer written",
		zap.String("component", "sink.gpkg"),
		zap.String("layer", l.Name),
		zap.String("path", path),
		zap.Int("features", len(l.Features)),
	)
	return path, nil
}

func (g *GeoPackage) write(ctx context.Context, path string, l *Layer) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return eris.Wrap(err, "gpkg: open")
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA application_id=%d", gpkgApplicationID),
		fmt.Sprintf("PRAGMA user_version=%d", gpkgUserVersion),
		"PRAGMA journal_mode=DELETE",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return eris.Wrapf(err, "gpkg: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, gpkgCoreTables); err != nil {
		return eris.Wrap(err, "gpkg: create core tables")
	}
	if err := insertSRS(ctx, db, l.CRS); err != nil {
		return err
	}

	geomType := l.GeometryType()
	if _, err := db.ExecContext(ctx, featureTableDDL(l, geomType)); err != nil {
		return eris.Wrapf(err, "gpkg: create table %s", l.Name)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "gpkg: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertFeatureSQL(l))
	if err != nil {
		return eris.Wrapf(err, "gpkg: prepare insert into %s", l.Name)
	}
	defer func() { _ = stmt.Close() }()

	extent := geom.NewBounds(geom.XY)
	for i, f := range l.Features {
		blob, err := encodeGP(f.Geom, l.CRS)
		if err != nil {
			return eris.Wrapf(err, "gpkg: feature %d", i)
		}
		extent.Extend(f.Geom)
		args := make([]any, 0, len(f.Values)+1)
		args = append(args, blob)
		args = append(args, f.Values...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "gpkg: insert feature %d", i)
		}
	}

	var minX, minY, maxX, maxY any
	if len(l.Features) > 0 {
		minX, minY, maxX, maxY = extent.Min(0), extent.Min(1), extent.Max(0), extent.Max(1)
	}
	now := g.Now
	if now == nil {
		now = time.Now
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, '', ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Name, now().UTC().Format("2006-01-02T15:04:05.000Z"), minX, minY, maxX, maxY, l.CRS,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert contents")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, 'geom', ?, ?, 0, 0)`,
		l.Name, geomType, l.CRS,
	); err != nil {
		return eris.Wrap(err, "gpkg: insert geometry columns")
	}
	return eris.Wrap(tx.Commit(), "gpkg: commit")
}

const gpkgCoreTables = `
CREATE TABLE gpkg_spatial_ref_sys (
	srs_name                 TEXT NOT NULL,
	srs_id                   INTEGER PRIMARY KEY,
	organization             TEXT NOT NULL,
	organization_coordsys_id INTEGER NOT NULL,
	definition               TEXT NOT NULL,
	description              TEXT
);

CREATE TABLE gpkg_contents (
	table_name  TEXT NOT NULL PRIMARY KEY,
	data_type   TEXT NOT NULL,
	identifier  TEXT UNIQUE,
	description TEXT DEFAULT '',
	last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
	min_x       DOUBLE,
	min_y       DOUBLE,
	max_x       DOUBLE,
	max_y       DOUBLE,
	srs_id      INTEGER,
	CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);

CREATE TABLE gpkg_geometry_columns (
	table_name         TEXT NOT NULL,
	column_name        TEXT NOT NULL,
	geometry_type_name TEXT NOT NULL,
	srs_id             INTEGER NOT NULL,
	z                  TINYINT NOT NULL,
	m                  TINYINT NOT NULL,
	CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
	CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
	CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
);
`

func insertSRS(ctx context.Context, db *sql.DB, code int) error {
	type srs struct {
		name, org string
		id, orgID int
		def, desc string
	}
	rows := []srs{
		{"Undefined cartesian SRS", "NONE", -1, -1, "undefined", "undefined cartesian coordinate reference system"},
		{"Undefined geographic SRS", "NONE", 0, 0, "undefined", "undefined geographic coordinate reference system"},
	}
	codes := []int{crs.WGS84}
	if code != crs.WGS84 {
		codes = append(codes, code)
	}
	for _, c := range codes {
		p, err := crs.Lookup(c)
		if err != nil {
			return eris.Wrapf(err, "gpkg: srs %d", c)
		}
		rows = append(rows, srs{p.Name(), "EPSG", c, c, p.WKT(), ""})
	}
	for _, r := range rows {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO gpkg_spatial_ref_sys (srs_name, srs_id, organization, organization_coordsys_id, definition, description)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.name, r.id, r.org, r.orgID, r.def, r.desc,
		); err != nil {
			return eris.Wrapf(err, "gpkg: insert srs %d", r.id)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func featureTableDDL(l *Layer, geomType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n\tfid INTEGER PRIMARY KEY AUTOINCREMENT,\n\tgeom %s", quoteIdent(l.Name), geomType)
	for _, c := range l.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", quoteIdent(c.Name), c.Type)
	}
	b.WriteString("\n)")
	return b.String()
}

func insertFeatureSQL(l *Layer) string {
	cols := []string{"geom"}
	marks := []string{"?"}
	for _, c := range l.Columns {
		cols = append(cols, quoteIdent(c.Name))
		marks = append(marks, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(l.Name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// encodeGP builds a GeoPackage geometry blob: the GP header followed by
// little-endian WKB. Points carry no envelope; other types an XY envelope.
func encodeGP(g geom.T, srid int) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode wkb")
	}

	var buf bytes.Buffer
	buf.WriteString("GP")
	buf.WriteByte(0) // version 1

	// flags: bit 0 little endian, bits 1-3 envelope kind, bit 4 empty.
	envelope := byte(1)
	if _, ok := g.(*geom.Point); ok {
		envelope = 0
	}
	flags := byte(0x01) | envelope<<1
	if g.Empty() {
		envelope = 0
		flags = 0x01 | 0x10
	}
	buf.WriteByte(flags)

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(int32(srid)))
	buf.Write(hdr[:])

	if envelope == 1 {
		b := g.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			var f [8]byte
			binary.LittleEndian.PutUint64(f[:], math.Float64bits(v))
			buf.Write(f[:])
		}
	}
	buf.Write(body)
	return buf.Bytes(), nil
}
