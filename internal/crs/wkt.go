package crs

import "fmt"

const (
	wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433],AUTHORITY["EPSG","4326"]]`

	pseudoMercatorWKT = `PROJCS["WGS 84 / Pseudo-Mercator",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1],AUTHORITY["EPSG","3857"]]`

	nationalGridWKT = `PROJCS["OSGB36 / British National Grid",GEOGCS["OSGB36",DATUM["Ordnance_Survey_of_Great_Britain_1936",SPHEROID["Airy 1830",6377563.396,299.3249646],TOWGS84[446.448,-125.157,542.06,0.15,0.247,0.842,-20.489]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",49],PARAMETER["central_meridian",-2],PARAMETER["scale_factor",0.9996012717],PARAMETER["false_easting",400000],PARAMETER["false_northing",-100000],UNIT["metre",1],AUTHORITY["EPSG","27700"]]`

	laeaEuropeWKT = `PROJCS["ETRS89-extended / LAEA Europe",GEOGCS["ETRS89",DATUM["European_Terrestrial_Reference_System_1989",SPHEROID["GRS 1980",6378137,298.257222101]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Lambert_Azimuthal_Equal_Area"],PARAMETER["latitude_of_center",52],PARAMETER["longitude_of_center",10],PARAMETER["false_easting",4321000],PARAMETER["false_northing",3210000],UNIT["metre",1],AUTHORITY["EPSG","3035"]]`

	utmWKT = `PROJCS["%s",GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563]],PRIMEM["Greenwich",0],UNIT["degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["latitude_of_origin",0],PARAMETER["central_meridian",%d],PARAMETER["scale_factor",0.9996],PARAMETER["false_easting",500000],PARAMETER["false_northing",%d],UNIT["metre",1],AUTHORITY["EPSG","%d"]]`
)

// describe returns the display name and OGC WKT of a supported code.
func describe(code int) (name, wkt string, ok bool) {
	switch {
	case code == WGS84:
		return "WGS 84", wgs84WKT, true
	case code == 3857:
		return "WGS 84 / Pseudo-Mercator", pseudoMercatorWKT, true
	case code == 27700:
		return "OSGB36 / British National Grid", nationalGridWKT, true
	case code == 3035:
		return "ETRS89-extended / LAEA Europe", laeaEuropeWKT, true
	case code >= 32601 && code <= 32660:
		return utmDescription(code-32600, "N", 0, code)
	case code >= 32701 && code <= 32760:
		return utmDescription(code-32700, "S", 10000000, code)
	default:
		return "", "", false
	}
}

func utmDescription(zone int, hemi string, falseNorthing, code int) (string, string, bool) {
	name := fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi)
	return name, fmt.Sprintf(utmWKT, name, zone*6-183, falseNorthing, code), true
}
