package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/tabular"
)

// WriteOptions configures Write.
type WriteOptions struct {
	// Dataset is a human-readable name stored in the manifest.
	Dataset string

	// ChunkRows is the number of matrix rows per chunk. Defaults to 256.
	ChunkRows int
}

// Write serializes the container to a bundle directory at path, creating
// it as needed. Existing arrays are overwritten.
func Write(path string, set *exprset.ExprSet, opts WriteOptions) error {
	if opts.ChunkRows <= 0 {
		opts.ChunkRows = 256
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("bundle: creating %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("bundle: creating zstd encoder: %w", err)
	}
	defer enc.Close()

	if err := writeArray(filepath.Join(path, exprsArray), set.Exprs(), opts.ChunkRows, enc); err != nil {
		return err
	}
	if set.HasCounts() {
		if err := writeArray(filepath.Join(path, countsArray), set.Counts(), opts.ChunkRows, enc); err != nil {
			return err
		}
	}

	if err := writeTable(filepath.Join(path, featureTableFile), set.FeatureData(), "feature"); err != nil {
		return err
	}
	if err := writeTable(filepath.Join(path, cellTableFile), set.CellData(), "cell"); err != nil {
		return err
	}

	md := Metadata{
		FormatVersion:       FormatVersion,
		Dataset:             opts.Dataset,
		NFeatures:           set.NumFeatures(),
		NCells:              set.NumCells(),
		FeatureNames:        set.FeatureNames(),
		CellNames:           set.CellNames(),
		LowerDetectionLimit: set.LowerDetectionLimit(),
		HasCounts:           set.HasCounts(),
	}
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshaling metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, metadataFile), data, 0644); err != nil {
		return fmt.Errorf("bundle: writing metadata: %w", err)
	}
	return nil
}

func writeArray(arrayPath string, m *tabular.Matrix, chunkRows int, enc *zstd.Encoder) error {
	nr, nc := m.Dims()
	meta := ArrayMeta{
		Shape:      []int{nr, nc},
		ChunkShape: []int{chunkRows, nc},
		DataType:   "float64",
	}

	if err := os.MkdirAll(arrayPath, 0755); err != nil {
		return fmt.Errorf("bundle: creating array dir: %w", err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(arrayPath, "array.json"), data, 0644); err != nil {
		return fmt.Errorf("bundle: writing array.json: %w", err)
	}

	nChunks := ceilDiv(nr, chunkRows)
	buf := make([]float64, 0, chunkRows*nc)
	rowBuf := make([]float64, 0, nc)
	for chunk := 0; chunk < nChunks; chunk++ {
		rowStart := chunk * chunkRows
		rowLen := min(chunkRows, nr-rowStart)

		buf = buf[:0]
		allZero := true
		for i := 0; i < rowLen; i++ {
			rowBuf = m.Row(rowStart+i, rowBuf)
			for _, v := range rowBuf {
				if v != 0 {
					allZero = false
				}
			}
			buf = append(buf, rowBuf...)
		}

		// All-zero chunks are elided; the reader fills them.
		if allZero {
			continue
		}

		p := chunkPath(arrayPath, chunk, 0)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("bundle: creating chunk dir: %w", err)
		}
		compressed := enc.EncodeAll(encodeFloats(buf), nil)
		if err := os.WriteFile(p, compressed, 0644); err != nil {
			return fmt.Errorf("bundle: writing chunk %d: %w", chunk, err)
		}
	}
	return nil
}

func writeTable(path string, t *tabular.Table, idHeader string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("bundle: creating %s: %w", path, err)
	}
	defer f.Close()
	if err := tabular.WriteTable(f, t, ',', idHeader); err != nil {
		return fmt.Errorf("bundle: writing %s: %w", path, err)
	}
	return nil
}
