package detection

import "github.com/jengzang/solarscan-backend-go/internal/spatial"

// AttachLatLon sets d.Lat/d.Lon from the box center's pixel offset to the
// image center. The offset is scaled by the tile's ground resolution and
// applied in projected meters, the same convention the grid uses to space
// tiles. Pixel rows grow downwards, so the y offset is subtracted. It
// returns false and leaves d untouched when d has no box or the image size
// is unknown.
func AttachLatLon(d *Detection, tileLat, tileLon float64, zoom, imgW, imgH int) bool {
	if d == nil || d.Box == nil || imgW <= 0 || imgH <= 0 {
		return false
	}

	cx, cy := d.Box.Center()
	dxPx := cx - float64(imgW)/2
	dyPx := cy - float64(imgH)/2

	mpp := spatial.MetersPerPixel(tileLat, zoom)
	d.Lat, d.Lon = spatial.OffsetMeters(tileLat, tileLon, dxPx*mpp, -dyPx*mpp)
	return true
}

// Geolocate stamps the tile metadata on d and resolves its coordinates,
// falling back to the tile center when no box is available.
func Geolocate(d *Detection, tileIndex, row, col int, tileLat, tileLon float64, zoom, imgW, imgH int) {
	d.TileIndex = tileIndex
	d.TileRow = row
	d.TileCol = col
	d.TileLat = tileLat
	d.TileLon = tileLon
	d.TileZoom = zoom
	d.ImageWidth = imgW
	d.ImageHeight = imgH

	if !AttachLatLon(d, tileLat, tileLon, zoom, imgW, imgH) {
		d.Lat = tileLat
		d.Lon = tileLon
		d.GeoFallback = true
	}
}
