package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/landuse-cli/internal/config"
	"github.com/sells-group/landuse-cli/internal/engine"
	"github.com/sells-group/landuse-cli/internal/landuse"
	"github.com/sells-group/landuse-cli/internal/region"
	"github.com/sells-group/landuse-cli/internal/sink"
)

// setRunFlags sets the run flag globals for one test.
func setRunFlags(t *testing.T, regions, location, line, point string, radius float64) {
	t.Helper()
	prev := []string{runRegionsFile, runLocation, runLine, runPoint}
	prevRadius := runRadius
	runRegionsFile, runLocation, runLine, runPoint, runRadius = regions, location, line, point, radius
	t.Cleanup(func() {
		runRegionsFile, runLocation, runLine, runPoint = prev[0], prev[1], prev[2], prev[3]
		runRadius = prevRadius
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		CRS:    27700,
		Region: config.RegionConfig{StudyBuffer: 50, FetchBuffer: 2000},
		Output: config.OutputConfig{Dir: t.TempDir(), Formats: []string{config.FormatGeoPackage}},
	}
}

func TestRunFlags_RegionsHelpNamesFormats(t *testing.T) {
	f := runCmd.Flags().Lookup("regions")
	require.NotNil(t, f)
	for _, ext := range []string{".yaml", ".csv", ".xlsx"} {
		assert.Contains(t, f.Usage, ext)
	}
}

func TestParseLine(t *testing.T) {
	line, err := parseLine("528680,181151; 528983 , 181222;")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{528680, 181151}, {528983, 181222}}, line)

	_, err = parseLine("")
	require.Error(t, err)

	_, err = parseLine("1,2;3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coordinate 1")

	_, err = parseLine("1,x")
	require.Error(t, err)
}

func TestParsePoint(t *testing.T) {
	pt, err := parsePoint("33.36402,35.17526")
	require.NoError(t, err)
	assert.InDelta(t, 33.36402, pt.Lng, 1e-9)
	assert.InDelta(t, 35.17526, pt.Lat, 1e-9)

	_, err = parsePoint("33.3")
	require.Error(t, err)
}

func TestRegionSpecs_Line(t *testing.T) {
	setRunFlags(t, "", "oxford_street", "528680,181151;528983,181222", "", 0)

	specs, err := regionSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "oxford_street", specs[0].Key)
	assert.Len(t, specs[0].Line, 2)
	assert.Nil(t, specs[0].Point)
}

func TestRegionSpecs_Point(t *testing.T) {
	setRunFlags(t, "", "nicosia", "", "33.36402,35.17526", 1500)

	specs, err := regionSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	require.NotNil(t, specs[0].Point)
	assert.InDelta(t, 1500, specs[0].Radius, 1e-9)
}

func TestRegionSpecs_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	require.NoError(t, os.WriteFile(path, []byte("regions:\n  - key: a\n    line: [[0, 0]]\n"), 0o644))
	setRunFlags(t, path, "", "", "", 0)

	specs, err := regionSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "a", specs[0].Key)
}

func TestRegionSpecs_Errors(t *testing.T) {
	tests := []struct {
		name                           string
		regions, location, line, point string
		want                           string
	}{
		{"nothing", "", "", "", "", "either --regions or --location"},
		{"file and location", "r.yaml", "a", "", "", "cannot be combined"},
		{"no geometry", "", "a", "", "", "needs --line or --point"},
		{"both geometries", "", "a", "0,0", "0,0", "not both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRunFlags(t, tt.regions, tt.location, tt.line, tt.point, 0)
			_, err := regionSpecs()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildRegions(t *testing.T) {
	c := testConfig(t)
	regions, err := buildRegions([]region.Spec{
		{Key: "oxford_street", Line: [][]float64{{528680, 181151}, {528983, 181222}}},
	}, c)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 27700, regions[0].CRS)

	_, err = buildRegions([]region.Spec{{Key: "empty"}}, c)
	require.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	c := testConfig(t)
	reg, err := loadRegistry(c)
	require.NoError(t, err)
	assert.Equal(t, 8, reg.Len())

	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parks:\n  leisure: [park]\n"), 0o644))
	c.Schema.Path = path
	reg, err = loadRegistry(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"parks"}, reg.Keys())
}

func TestBuildSinks_FileFormats(t *testing.T) {
	c := testConfig(t)
	c.Output.Formats = []string{config.FormatGeoPackage, config.FormatGeoJSON, config.FormatShapefile}
	c.Output.KeepCRS = true

	sinks, closeFn, err := buildSinks(context.Background(), c)
	require.NoError(t, err)
	defer closeFn()

	require.Len(t, sinks, 3)
	assert.IsType(t, &sink.GeoPackage{}, sinks[0])
	gj, ok := sinks[1].(*sink.GeoJSON)
	require.True(t, ok)
	assert.True(t, gj.KeepCRS)
	assert.IsType(t, &sink.Shapefile{}, sinks[2])
}

func TestBuildSinks_UnknownFormat(t *testing.T) {
	c := testConfig(t)
	c.Output.Formats = []string{"kml"}
	_, _, err := buildSinks(context.Background(), c)
	require.Error(t, err)
}

func TestBuildSinks_PostGISBadURL(t *testing.T) {
	c := testConfig(t)
	c.Output.Formats = []string{config.FormatGeoJSON, config.FormatPostGIS}
	c.PostGIS.DatabaseURL = "://not a url"
	_, _, err := buildSinks(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgis sink")
}

func TestOSMConfig(t *testing.T) {
	c := testConfig(t)
	c.Overpass = config.OverpassConfig{
		Endpoint:            "http://overpass.local/api/interpreter",
		TimeoutSecs:         90,
		RatePerSec:          0.5,
		MaxAttempts:         4,
		RetryInitialSecs:    2,
		BreakerThreshold:    3,
		BreakerCooldownSecs: 30,
		UserAgent:           "test-agent",
	}
	o := osmConfig(c)
	assert.Equal(t, "http://overpass.local/api/interpreter", o.Endpoint)
	assert.Equal(t, 90*time.Second, o.Timeout)
	assert.InDelta(t, 0.5, o.RatePerSec, 1e-9)
	assert.Equal(t, 4, o.Retry.Attempts)
	assert.Equal(t, 2*time.Second, o.Retry.Initial)
	assert.Equal(t, 3, o.BreakerThreshold)
	assert.Equal(t, 30*time.Second, o.BreakerCooldown)
	assert.Equal(t, "test-agent", o.UserAgent)
}

func TestSummaryView(t *testing.T) {
	sum := &engine.Summary{
		Reports: []*engine.Report{{
			Location:  "oxford_street",
			RunID:     "run-1",
			Landuses:  12,
			LiveNodes: 40,
			Stats:     landuse.Stats{FailedCategories: []string{"retail"}},
			Artifacts: []string{"out/oxford_street.gpkg"},
			Elapsed:   1500 * time.Millisecond,
		}},
		Failed: map[string]error{"nicosia": eris.New("engine: no street network around nicosia")},
	}
	v := summaryView(sum)
	require.Len(t, v.Regions, 1)
	assert.Equal(t, "oxford_street", v.Regions[0].Location)
	assert.Equal(t, []string{"retail"}, v.Regions[0].Failed)
	assert.Equal(t, "1.5s", v.Regions[0].Elapsed)
	assert.Contains(t, v.Errors["nicosia"], "no street network")

	empty := summaryView(&engine.Summary{})
	assert.NotNil(t, empty.Regions)
	assert.Nil(t, empty.Errors)
}
