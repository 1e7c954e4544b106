package model

// Metadata — метаданные файла, извлечённые внешними инструментами.
// Набор ключей зависит от вида файла: PointCloudMetadata для LAS/LAZ,
// RasterMetadata для GeoTIFF.
type Metadata interface {
	metadataKind() string
}

// PointCloudMetadata — метаданные облака точек (pdal info --summary).
type PointCloudMetadata struct {
	PointCount int64              `json:"point_count"`
	Bounds     map[string]float64 `json:"bounds"`
	Dimensions []string           `json:"dimensions"`
	// SRS — WKT системы координат; nil, если файл её не содержит.
	SRS *string `json:"srs"`
}

func (PointCloudMetadata) metadataKind() string { return "pointcloud" }

// Bounds — охват растра в координатах CRS.
type Bounds struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

// RasterMetadata — метаданные растра GeoTIFF.
type RasterMetadata struct {
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Bands      int        `json:"bands"`
	CRS        *string    `json:"crs"`
	Bounds     Bounds     `json:"bounds"`
	Resolution [2]float64 `json:"resolution"`
	DType      string     `json:"dtype"`
	NoData     *float64   `json:"nodata"`
}

func (RasterMetadata) metadataKind() string { return "raster" }
