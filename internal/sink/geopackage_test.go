package sink

import (
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

func fixedGeoPackage(dir string) *GeoPackage {
	g := NewGeoPackage(dir)
	g.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func openGPKG(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGeoPackage_Write(t *testing.T) {
	dir := t.TempDir()
	s := fixedGeoPackage(dir)

	path, err := s.Write(context.Background(), placesLayer())
	require.NoError(t, err)
	assert.Equal(t, s.Path("oxford_street_places"), path)

	db := openGPKG(t, path)

	var appID, version int
	require.NoError(t, db.QueryRow("PRAGMA application_id").Scan(&appID))
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, gpkgApplicationID, appID)
	assert.Equal(t, gpkgUserVersion, version)

	var srsCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM gpkg_spatial_ref_sys WHERE srs_id IN (-1, 0, 4326, 27700)").Scan(&srsCount))
	assert.Equal(t, 4, srsCount)

	var dataType, lastChange string
	var minX, maxY float64
	var srsID int
	require.NoError(t, db.QueryRow(
		"SELECT data_type, last_change, min_x, max_y, srs_id FROM gpkg_contents WHERE table_name = ?", "oxford_street_places",
	).Scan(&dataType, &lastChange, &minX, &maxY, &srsID))
	assert.Equal(t, "features", dataType)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", lastChange)
	assert.InDelta(t, 528831, minX, 1e-9)
	assert.InDelta(t, 181200, maxY, 1e-9)
	assert.Equal(t, 27700, srsID)

	var geomType string
	require.NoError(t, db.QueryRow(
		"SELECT geometry_type_name FROM gpkg_geometry_columns WHERE table_name = ? AND column_name = 'geom'", "oxford_street_places",
	).Scan(&geomType))
	assert.Equal(t, "POINT", geomType)

	rows, err := db.Query(`SELECT fid, geom, id, cat_key FROM "oxford_street_places" ORDER BY fid`)
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var fid int
		var blob []byte
		var id, cat string
		require.NoError(t, rows.Scan(&fid, &blob, &id, &cat))
		g, srid, err := decodeGP(blob)
		require.NoError(t, err)
		assert.Equal(t, 27700, srid)
		pt, ok := g.(*geom.Point)
		require.True(t, ok)
		if id == "0" {
			assert.InDelta(t, 528831, pt.X(), 1e-9)
			assert.InDelta(t, 181186, pt.Y(), 1e-9)
		}
		got = append(got, id+":"+cat)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"0:eating", "1:retail"}, got)
}

func TestGeoPackage_ReplacesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	s := fixedGeoPackage(dir)

	_, err := s.Write(context.Background(), placesLayer())
	require.NoError(t, err)

	l := placesLayer()
	l.Features = l.Features[:1]
	path, err := s.Write(context.Background(), l)
	require.NoError(t, err)

	var n int
	require.NoError(t, openGPKG(t, path).QueryRow(`SELECT COUNT(*) FROM "oxford_street_places"`).Scan(&n))
	assert.Equal(t, 1, n)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestGeoPackage_IdenticalInputIdenticalBytes(t *testing.T) {
	a := fixedGeoPackage(t.TempDir())
	b := fixedGeoPackage(t.TempDir())

	pa, err := a.Write(context.Background(), placesLayer())
	require.NoError(t, err)
	pb, err := b.Write(context.Background(), placesLayer())
	require.NoError(t, err)

	da, err := os.ReadFile(pa)
	require.NoError(t, err)
	db, err := os.ReadFile(pb)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestGeoPackage_EmptyLayer(t *testing.T) {
	s := fixedGeoPackage(t.TempDir())
	l := placesLayer()
	l.Features = nil

	path, err := s.Write(context.Background(), l)
	require.NoError(t, err)

	db := openGPKG(t, path)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "oxford_street_places"`).Scan(&n))
	assert.Equal(t, 0, n)

	var minX sql.NullFloat64
	require.NoError(t, db.QueryRow("SELECT min_x FROM gpkg_contents").Scan(&minX))
	assert.False(t, minX.Valid)
}

func TestGeoPackage_NodesLayer(t *testing.T) {
	s := fixedGeoPackage(t.TempDir())
	path, err := s.Write(context.Background(), nodesLayer())
	require.NoError(t, err)

	var nodeID int64
	var live bool
	var nw, wt float64
	require.NoError(t, openGPKG(t, path).QueryRow(
		`SELECT node_id, live, cc_eating_100_nw, cc_eating_100_wt FROM "oxford_street" ORDER BY fid LIMIT 1`,
	).Scan(&nodeID, &live, &nw, &wt))
	assert.Equal(t, int64(7), nodeID)
	assert.True(t, live)
	assert.InDelta(t, 2.0, nw, 1e-12)
	assert.InDelta(t, 0.5, wt, 1e-12)
}

func TestGeoPackage_InvalidLayer(t *testing.T) {
	s := fixedGeoPackage(t.TempDir())
	l := placesLayer()
	l.Name = ""
	_, err := s.Write(context.Background(), l)
	require.Error(t, err)
}

func TestEncodeGP_PolygonEnvelope(t *testing.T) {
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {4, 0}, {4, 2}, {0, 2}, {0, 0}}})
	blob, err := encodeGP(poly, 27700)
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), blob[3])

	g, srid, err := decodeGP(blob)
	require.NoError(t, err)
	assert.Equal(t, 27700, srid)
	assert.Equal(t, poly.FlatCoords(), g.FlatCoords())
}

func TestDecodeGP_Invalid(t *testing.T) {
	_, _, err := decodeGP([]byte("nope"))
	require.Error(t, err)
}

// decodeGP is the inverse of encodeGP.
func decodeGP(blob []byte) (geom.T, int, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: not a GeoPackage geometry blob")
	}
	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&0x01 == 1 {
		order = binary.LittleEndian
	}
	srid := int(int32(order.Uint32(blob[4:8])))
	offset := 8
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		offset += 32
	case 2, 3:
		offset += 48
	case 4:
		offset += 64
	default:
		return nil, 0, eris.Errorf("gpkg: invalid envelope indicator in flags %#x", flags)
	}
	if len(blob) < offset {
		return nil, 0, eris.New("gpkg: truncated geometry blob")
	}
	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, srid, nil
}
