// Package extractortest provides worker documents and fake workers for
// tests.
package extractortest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/tikpoptv/terrahost/internal/extractor"
)

const sample = `{
  "file_info": {"filename": "MCD18A1_20250605.tif", "file_size": 4096, "file_extension": ".tif"},
  "raster_info": {"width": 120, "height": 80, "bands_count": 3, "driver": "GTiff"},
  "spatial_info": {
    "geotransform": {"x0": 100.0, "y0": 14.0, "pixel_width": 0.01, "pixel_height": -0.01, "skew_x": 0, "skew_y": 0},
    "projection": {"wkt": "GEOGCS[\"WGS 84\",DATUM[\"WGS_1984\"]]", "epsg_code": "4326", "proj4": "+proj=longlat +datum=WGS84 +no_defs", "name": "WGS 84"},
    "bounding_box": {"x_min": 100.0, "y_min": 13.2, "x_max": 101.2, "y_max": 14.0, "center_x": 100.6, "center_y": 13.6},
    "resolution": {"x_meters": 1113.2, "y_meters": 1113.2, "units": "meters"},
    "area_sq_meters": 11894524416.0
  },
  "band_data": [
    {"band_index": 0, "band_number": 1, "data_type": "UInt16", "nodata_value": 0, "scale": 1.0, "offset": 0.0,
     "description": "red", "color_interpretation": "Red", "metadata": {},
     "statistics": {"min": 12, "max": 4090, "mean": 812.5, "std": 210.1, "median": 790, "q25": 640, "q75": 950, "valid_pixels": 9500, "total_pixels": 9600, "nodata_pixels": 100},
     "histogram": {"counts": [10, 20, 30], "bins": [0, 1000, 2000, 3000], "bin_count": 3}},
    {"band_index": 1, "band_number": 2, "data_type": "UInt16", "nodata_value": 0, "scale": 1.0, "offset": 0.0,
     "description": "green", "color_interpretation": "Green", "metadata": {},
     "statistics": {"min": 20, "max": 3900, "mean": 901.0, "std": 198.4, "median": 880, "q25": 700, "q75": 1010, "valid_pixels": 9500, "total_pixels": 9600, "nodata_pixels": 100},
     "histogram": {"counts": [5, 25, 30], "bins": [0, 1000, 2000, 3000], "bin_count": 3}},
    {"band_index": 2, "band_number": 3, "data_type": "UInt16", "nodata_value": null, "scale": null, "offset": null,
     "description": "nir", "color_interpretation": "Undefined", "metadata": {"WAVELENGTH": "842"},
     "statistics": {"min": 30, "max": 5200, "mean": 2304.2, "std": 512.9, "median": 2250, "q25": 1900, "q75": 2700, "valid_pixels": 9600, "total_pixels": 9600, "nodata_pixels": 0},
     "histogram": {"counts": [2, 8, 50], "bins": [0, 2000, 4000, 6000], "bin_count": 3}}
  ],
  "metadata": {
    "default": {"AREA_OR_POINT": "Area", "TIFFTAG_DATETIME": "2025:06:05 10:30:00"},
    "IMAGE_STRUCTURE": {"INTERLEAVE": "PIXEL"},
    "bands": [{"band": 1}, {"band": 2}, {"band": 3}],
    "parsed_info": {
      "sensor_info": {"detected_sensor": "MODIS", "capabilities": ["surface_reflectance"], "typical_bands": {"1": "red", "2": "nir"}},
      "acquisition_info": {"date": "2025-06-05"},
      "processing_info": {"software": "GDAL"},
      "coordinate_info": {"datum": "WGS84"},
      "quality_info": {"cloud_cover": "3%"}
    }
  },
  "computed_indices": {
    "band_detection": {
      "band_1": {"band_number": 1, "description": "red", "detected_type": "red", "wavelength": 665, "metadata": {}},
      "band_2": {"band_number": 2, "description": "green", "detected_type": "green", "wavelength": null, "metadata": {}},
      "band_3": {"band_number": 3, "description": "nir", "detected_type": "nir", "wavelength": 842, "metadata": {"WAVELENGTH": "842"}}
    },
    "rgb": {"brightness": 0.42},
    "vegetation": {"ndvi": {"mean": 0.48, "min": -0.1, "max": 0.91}},
    "water": {"ndwi": {"mean": -0.31}},
    "soil": {"bsi": {"mean": 0.05}},
    "thermal": {},
    "custom": {"red_green_ratio": {"mean": 0.9}},
    "spectral_analysis": {
      "spectral_profile": {"band_1": 812.5, "band_2": 901.0, "band_3": 2304.2},
      "wavelength_info": {"detected_wavelengths": {"band_1": 665, "band_3": 842}},
      "band_correlations": {"band_1_vs_band_2": 0.93, "band_1_vs_band_3": 0.41, "band_2_vs_band_3": 0.47},
      "spectral_curve": {},
      "atmospheric_analysis": {"haze_index": 0.12},
      "surface_material_hints": [{"material": "vegetation", "confidence": 0.8, "reason": "high nir reflectance"}]
    }
  },
  "spatial_features": {"texture": {"band_1": {"entropy": 5.2}}},
  "statistics": {"overall_mean": 1339.2},
  "raw_storage": {
    "complete_metadata": {"default": {"AREA_OR_POINT": "Area"}},
    "pixel_samples": {
      "band_1": {"samples": [12, 400, 812], "sample_count": 3, "total_pixels": 9600},
      "band_2": {"samples": [20, 500, 901], "sample_count": 3, "total_pixels": 9600},
      "band_3": {"samples": [30, 2000, 2304], "sample_count": 3, "total_pixels": 9600}
    },
    "compressed_bands": {},
    "reconstruction_info": {"geotransform": [100.0, 0.01, 0, 14.0, 0, -0.01]}
  },
  "extraction_timestamp": "2025-06-06T08:00:00",
  "extractor_version": "1.0.1-with-raw-storage"
}`

// SampleJSON returns a complete three-band worker document.
func SampleJSON() []byte {
	return []byte(sample)
}

// SampleDocument returns SampleJSON parsed.
func SampleDocument() *extractor.Document {
	doc, err := extractor.Parse(SampleJSON())
	if err != nil {
		panic(err)
	}
	return doc
}

// SampleWithout returns SampleJSON with the given top-level sections
// removed. Nested sections are addressed as "parent.child".
func SampleWithout(sections ...string) []byte {
	var doc map[string]any
	if err := json.Unmarshal(SampleJSON(), &doc); err != nil {
		panic(err)
	}
	for _, s := range sections {
		removePath(doc, s)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return out
}

func removePath(m map[string]any, path string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			if child, ok := m[path[:i]].(map[string]any); ok {
				removePath(child, path[i+1:])
			}
			return
		}
	}
	delete(m, path)
}

// Worker is a fake extraction worker backed by a shell script.
type Worker struct {
	Binary string
	Args   []string
}

// NewWorker writes a script that prints stdout, writes stderr and exits
// with exitCode. The raster path argument is ignored.
func NewWorker(t testing.TB, stdout []byte, stderr string, exitCode int) Worker {
	t.Helper()
	dir := t.TempDir()
	outFile := filepath.Join(dir, "stdout.json")
	if err := os.WriteFile(outFile, stdout, 0o600); err != nil {
		t.Fatal(err)
	}
	script := "cat '" + outFile + "'\n"
	if stderr != "" {
		errFile := filepath.Join(dir, "stderr.txt")
		if err := os.WriteFile(errFile, []byte(stderr), 0o600); err != nil {
			t.Fatal(err)
		}
		script += "cat '" + errFile + "' >&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"
	return ScriptWorker(t, script)
}

// ScriptWorker runs an arbitrary shell script as the worker. The raster
// path is available as $1.
func ScriptWorker(t testing.TB, script string) Worker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}
	return Worker{Binary: "/bin/sh", Args: []string{path}}
}
