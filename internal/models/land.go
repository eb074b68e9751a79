package models

// GeoPoint is a single polygon vertex in WGS84 coordinates.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Land is a measured parcel. Lands are append-only: the polygon and area
// are fixed at creation, so concurrent edits cannot conflict.
type Land struct {
	Name         string     `json:"name"`
	AreaHectares float64    `json:"area_hectares"`
	Polygon      []GeoPoint `json:"polygon"`
	Notes        string     `json:"notes,omitempty"`
}
