package geoproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ABASgroup/AirBIM/internal/domain/model"
)

// Extractor — извлечение метаданных BIM-файлов:
// облака точек через `pdal info --summary`, растры через `gdalinfo -json`.
type Extractor struct {
	runner      Runner
	pdalBin     string
	gdalInfoBin string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewExtractor создаёт Extractor.
func NewExtractor(runner Runner, pdalBin, gdalInfoBin string, timeout time.Duration, logger *slog.Logger) *Extractor {
	return &Extractor{
		runner:      runner,
		pdalBin:     pdalBin,
		gdalInfoBin: gdalInfoBin,
		timeout:     timeout,
		logger:      logger.With(slog.String("component", "extractor")),
	}
}

// Extract возвращает метаданные файла path вида kind.
// Отсутствие или нечитаемость файла проверяется до запуска инструментов.
func (e *Extractor) Extract(ctx context.Context, kind model.Kind, path string) (model.Metadata, error) {
	if err := CheckReadable(path); err != nil {
		return nil, err
	}

	switch kind {
	case model.KindLAS, model.KindLAZ:
		return e.pointCloud(ctx, path)
	case model.KindGeoTIFF:
		return e.raster(ctx, path)
	default:
		return nil, fmt.Errorf("неизвестный вид файла %q", kind)
	}
}

// GDALAvailable проверяет наличие gdalinfo.
func (e *Extractor) GDALAvailable() error {
	_, err := e.runner.LookPath(e.gdalInfoBin)
	return err
}

// pointCloud запускает pdal info --summary и разбирает вывод.
func (e *Extractor) pointCloud(ctx context.Context, path string) (model.Metadata, error) {
	out, err := e.runTool(ctx, "pdal_info", e.pdalBin, "info", "--summary", path)
	if err != nil {
		return nil, err
	}

	md, err := ParsePDALSummary(out)
	if err != nil {
		e.logger.Error("Не удалось разобрать вывод PDAL",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &MetadataError{Reason: ReasonParse, Diagnostic: err.Error(), Err: err}
	}
	return md, nil
}

// raster запускает gdalinfo -json и разбирает вывод.
func (e *Extractor) raster(ctx context.Context, path string) (model.Metadata, error) {
	out, err := e.runTool(ctx, "gdalinfo", e.gdalInfoBin, "-json", path)
	if err != nil {
		return nil, err
	}

	md, err := ParseGDALInfo(out)
	if err != nil {
		e.logger.Error("Не удалось разобрать вывод gdalinfo",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, &MetadataError{Reason: ReasonParse, Diagnostic: err.Error(), Err: err}
	}
	return md, nil
}

// runTool запускает инструмент и приводит ошибки к MetadataError.
func (e *Extractor) runTool(ctx context.Context, tool, bin string, args ...string) ([]byte, error) {
	ctx, cancel := toolContext(ctx, e.timeout)
	defer cancel()

	res, err := run(ctx, e.runner, tool, bin, args...)
	if err != nil {
		if errors.Is(err, ErrToolNotFound) {
			e.logger.Error("Инструмент не найден", slog.String("bin", bin))
			return nil, &MetadataError{Reason: ReasonUnavailable, Diagnostic: err.Error(), Err: err}
		}
		return nil, &MetadataError{Reason: ReasonToolFailed, Diagnostic: err.Error(), Err: err}
	}
	if res.ExitCode != 0 {
		diag := strings.TrimSpace(string(res.Stderr))
		e.logger.Error("Инструмент завершился с ошибкой",
			slog.String("tool", tool),
			slog.Int("exit_code", res.ExitCode),
			slog.String("stderr", diag),
		)
		return nil, &MetadataError{Reason: ReasonToolFailed, Diagnostic: diag}
	}
	return res.Stdout, nil
}

// CheckReadable проверяет, что path — обычный файл, доступный для чтения.
// Ошибка — *MetadataError с Reason = ReasonUnreadable.
func CheckReadable(path string) error {
	if err := openRegular(path); err != nil {
		return &MetadataError{Reason: ReasonUnreadable, Diagnostic: err.Error(), Err: err}
	}
	return nil
}

func openRegular(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s является директорией", path)
	}
	return nil
}

// --- PDAL ---

type pdalSRS struct {
	WKT string `json:"wkt"`
}

type pdalInfo struct {
	Summary *struct {
		NumPoints  int64              `json:"num_points"`
		Bounds     map[string]float64 `json:"bounds"`
		Dimensions json.RawMessage    `json:"dimensions"`
		SRS        *pdalSRS           `json:"srs"`
	} `json:"summary"`
	SRS *pdalSRS `json:"srs"`
}

// ParsePDALSummary разбирает JSON-вывод `pdal info --summary`.
// dimensions приходит строкой через запятую или массивом строк.
func ParsePDALSummary(data []byte) (*model.PointCloudMetadata, error) {
	var info pdalInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("некорректный JSON pdal: %w", err)
	}

	md := &model.PointCloudMetadata{
		Bounds:     map[string]float64{},
		Dimensions: []string{},
	}

	if s := info.Summary; s != nil {
		md.PointCount = s.NumPoints
		if s.Bounds != nil {
			md.Bounds = s.Bounds
		}
		dims, err := parseDimensions(s.Dimensions)
		if err != nil {
			return nil, err
		}
		md.Dimensions = dims
		if s.SRS != nil && s.SRS.WKT != "" {
			wkt := s.SRS.WKT
			md.SRS = &wkt
		}
	}

	if md.SRS == nil && info.SRS != nil && info.SRS.WKT != "" {
		wkt := info.SRS.WKT
		md.SRS = &wkt
	}

	return md, nil
}

func parseDimensions(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		dims := []string{}
		for _, d := range strings.Split(joined, ",") {
			if d = strings.TrimSpace(d); d != "" {
				dims = append(dims, d)
			}
		}
		return dims, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("некорректное поле dimensions: %w", err)
	}
	return list, nil
}

// --- GDAL ---

type gdalBand struct {
	Type        string          `json:"type"`
	NoDataValue json.RawMessage `json:"noDataValue"`
}

type gdalInfo struct {
	Size             []int     `json:"size"`
	GeoTransform     []float64 `json:"geoTransform"`
	CoordinateSystem *struct {
		WKT string `json:"wkt"`
	} `json:"coordinateSystem"`
	STAC *struct {
		EPSG *int `json:"proj:epsg"`
	} `json:"stac"`
	Bands []gdalBand `json:"bands"`
}

// gdalTypes — соответствие типов GDAL именам dtype.
var gdalTypes = map[string]string{
	"Byte":     "uint8",
	"Int8":     "int8",
	"UInt16":   "uint16",
	"Int16":    "int16",
	"UInt32":   "uint32",
	"Int32":    "int32",
	"UInt64":   "uint64",
	"Int64":    "int64",
	"Float32":  "float32",
	"Float64":  "float64",
	"CInt16":   "complex_int16",
	"CFloat32": "complex64",
	"CFloat64": "complex128",
}

// ParseGDALInfo разбирает JSON-вывод `gdalinfo -json`.
// Охват вычисляется по геотрансформации, разрешение — |gt[1]|, |gt[5]|
// (для повёрнутых растров — длина векторов пикселя).
func ParseGDALInfo(data []byte) (*model.RasterMetadata, error) {
	var info gdalInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("некорректный JSON gdalinfo: %w", err)
	}
	if len(info.Size) != 2 {
		return nil, fmt.Errorf("в выводе gdalinfo нет размера растра")
	}
	if len(info.Bands) == 0 {
		return nil, fmt.Errorf("в растре нет каналов")
	}

	gt := info.GeoTransform
	if len(gt) == 0 {
		// Растр без геопривязки: единичное преобразование
		gt = []float64{0, 1, 0, 0, 0, 1}
	}
	if len(gt) != 6 {
		return nil, fmt.Errorf("некорректная геотрансформация: %d коэффициентов", len(gt))
	}

	width, height := info.Size[0], info.Size[1]
	md := &model.RasterMetadata{
		Width:  width,
		Height: height,
		Bands:  len(info.Bands),
		Bounds: boundsFromTransform(gt, float64(width), float64(height)),
		Resolution: [2]float64{
			math.Hypot(gt[1], gt[4]),
			math.Hypot(gt[2], gt[5]),
		},
		DType: dtypeName(info.Bands[0].Type),
	}

	switch {
	case info.STAC != nil && info.STAC.EPSG != nil:
		crs := fmt.Sprintf("EPSG:%d", *info.STAC.EPSG)
		md.CRS = &crs
	case info.CoordinateSystem != nil && info.CoordinateSystem.WKT != "":
		crs := info.CoordinateSystem.WKT
		md.CRS = &crs
	}

	nodata, err := parseNoData(info.Bands[0].NoDataValue)
	if err != nil {
		return nil, err
	}
	md.NoData = nodata

	return md, nil
}

// boundsFromTransform вычисляет охват по четырём углам растра.
func boundsFromTransform(gt []float64, w, h float64) model.Bounds {
	xs := [4]float64{}
	ys := [4]float64{}
	for i, c := range [4][2]float64{{0, 0}, {w, 0}, {0, h}, {w, h}} {
		xs[i] = gt[0] + c[0]*gt[1] + c[1]*gt[2]
		ys[i] = gt[3] + c[0]*gt[4] + c[1]*gt[5]
	}

	b := model.Bounds{MinX: xs[0], MaxX: xs[0], MinY: ys[0], MaxY: ys[0]}
	for i := 1; i < 4; i++ {
		b.MinX = math.Min(b.MinX, xs[i])
		b.MaxX = math.Max(b.MaxX, xs[i])
		b.MinY = math.Min(b.MinY, ys[i])
		b.MaxY = math.Max(b.MaxY, ys[i])
	}
	return b
}

func dtypeName(gdalType string) string {
	if name, ok := gdalTypes[gdalType]; ok {
		return name
	}
	return strings.ToLower(gdalType)
}

// parseNoData разбирает noDataValue: число или строку ("nan", "inf").
// Значения, непредставимые в JSON, возвращаются как nil.
func parseNoData(raw json.RawMessage) (*float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("некорректное значение noDataValue: %s", raw)
	}
	switch strings.ToLower(s) {
	case "nan", "inf", "-inf", "infinity", "-infinity":
		return nil, nil
	}
	return nil, fmt.Errorf("некорректное значение noDataValue: %q", s)
}
