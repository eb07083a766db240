// Package bundle reads and writes the on-disk dataset bundle: a directory
// holding zstd-compressed chunked matrices, delimited metadata tables, and
// a JSON manifest keyed by axis identifiers.
package bundle

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// FormatVersion identifies the bundle layout this package writes.
const FormatVersion = "1.0"

// Array directory names inside a bundle.
const (
	exprsArray  = "exprs"
	countsArray = "counts"

	featureTableFile = "fdata.csv"
	cellTableFile    = "cdata.csv"
	metadataFile     = "metadata.json"
)

// Metadata is the bundle manifest.
type Metadata struct {
	FormatVersion       string   `json:"format_version"`
	Dataset             string   `json:"dataset_name"`
	NFeatures           int      `json:"n_features"`
	NCells              int      `json:"n_cells"`
	FeatureNames        []string `json:"feature_names"`
	CellNames           []string `json:"cell_names"`
	LowerDetectionLimit float64  `json:"lower_detection_limit"`
	HasCounts           bool     `json:"has_counts"`
}

// ArrayMeta describes one chunked matrix (array.json).
type ArrayMeta struct {
	Shape      []int  `json:"shape"`
	ChunkShape []int  `json:"chunk_shape"`
	DataType   string `json:"data_type"`
}

func loadArrayMeta(arrayPath string) (*ArrayMeta, error) {
	data, err := os.ReadFile(filepath.Join(arrayPath, "array.json"))
	if err != nil {
		return nil, err
	}
	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	if meta.DataType != "float64" {
		return nil, fmt.Errorf("bundle: unsupported data_type %q", meta.DataType)
	}
	if len(meta.Shape) != 2 || len(meta.ChunkShape) != 2 {
		return nil, fmt.Errorf("bundle: expected 2-d array, got shape %v chunk %v", meta.Shape, meta.ChunkShape)
	}
	if meta.ChunkShape[0] <= 0 || meta.ChunkShape[1] <= 0 {
		return nil, fmt.Errorf("bundle: invalid chunk shape %v", meta.ChunkShape)
	}
	return &meta, nil
}

// chunkPath is <array>/c/<rowChunk>/<colChunk>.
func chunkPath(arrayPath string, rowChunk, colChunk int) string {
	return filepath.Join(arrayPath, "c", strconv.Itoa(rowChunk), strconv.Itoa(colChunk))
}

func encodeFloats(values []float64) []byte {
	out := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func decodeFloats(data []byte, dst []float64) error {
	if len(data) < 8*len(dst) {
		return fmt.Errorf("bundle: chunk too short: %d bytes for %d values", len(data), len(dst))
	}
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
