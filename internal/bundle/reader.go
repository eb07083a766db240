package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/klauspost/compress/zstd"

	"github.com/cellkit/cellkit/internal/exprset"
	"github.com/cellkit/cellkit/internal/tabular"
)

// Reader provides access to a bundle directory.
type Reader struct {
	basePath string
	metadata *Metadata
	decoder  *zstd.Decoder
	chunks   *bigcache.BigCache
}

// ReaderOptions configures NewReader.
type ReaderOptions struct {
	// ChunkCacheSizeMB bounds the decompressed chunk cache. Defaults to 64.
	ChunkCacheSizeMB int
}

// NewReader opens the bundle at basePath and loads its manifest.
func NewReader(basePath string, opts ReaderOptions) (*Reader, error) {
	if opts.ChunkCacheSizeMB <= 0 {
		opts.ChunkCacheSizeMB = 64
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("bundle: creating zstd decoder: %w", err)
	}

	chunkCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         10 * time.Minute,
		CleanWindow:        5 * time.Minute,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       4 * 1024 * 1024,
		HardMaxCacheSize:   opts.ChunkCacheSizeMB,
		Verbose:            false,
	}
	chunks, err := bigcache.New(context.Background(), chunkCacheConfig)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("bundle: creating chunk cache: %w", err)
	}

	r := &Reader{
		basePath: basePath,
		decoder:  decoder,
		chunks:   chunks,
	}
	if err := r.loadMetadata(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Metadata returns the bundle manifest.
func (r *Reader) Metadata() *Metadata {
	return r.metadata
}

func (r *Reader) loadMetadata() error {
	data, err := os.ReadFile(filepath.Join(r.basePath, metadataFile))
	if err != nil {
		return fmt.Errorf("bundle: reading metadata: %w", err)
	}
	var md Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return fmt.Errorf("bundle: parsing metadata: %w", err)
	}
	if md.FormatVersion != FormatVersion {
		return fmt.Errorf("bundle: unsupported format version %q", md.FormatVersion)
	}
	if len(md.FeatureNames) != md.NFeatures || len(md.CellNames) != md.NCells {
		return fmt.Errorf("bundle: manifest axis names disagree with declared shape %dx%d",
			md.NFeatures, md.NCells)
	}
	r.metadata = &md
	return nil
}

// Exprs reads the expression matrix.
func (r *Reader) Exprs() (*tabular.Matrix, error) {
	return r.readArray(exprsArray)
}

// Counts reads the raw count matrix, or nil when the bundle has none.
func (r *Reader) Counts() (*tabular.Matrix, error) {
	if !r.metadata.HasCounts {
		return nil, nil
	}
	return r.readArray(countsArray)
}

// FeatureData reads the feature annotation table.
func (r *Reader) FeatureData() (*tabular.Table, error) {
	return tabular.ReadTableFile(filepath.Join(r.basePath, featureTableFile))
}

// CellData reads the cell annotation table.
func (r *Reader) CellData() (*tabular.Table, error) {
	return tabular.ReadTableFile(filepath.Join(r.basePath, cellTableFile))
}

// ExprSet assembles the full container from the bundle.
func (r *Reader) ExprSet() (*exprset.ExprSet, error) {
	exprs, err := r.Exprs()
	if err != nil {
		return nil, err
	}
	counts, err := r.Counts()
	if err != nil {
		return nil, err
	}
	fdata, err := r.FeatureData()
	if err != nil {
		return nil, fmt.Errorf("bundle: reading feature table: %w", err)
	}
	cdata, err := r.CellData()
	if err != nil {
		return nil, fmt.Errorf("bundle: reading cell table: %w", err)
	}
	return exprset.New(exprset.Config{
		Exprs:               exprs,
		Counts:              counts,
		FeatureData:         fdata,
		CellData:            cdata,
		LowerDetectionLimit: r.metadata.LowerDetectionLimit,
	})
}

func (r *Reader) readArray(name string) (*tabular.Matrix, error) {
	arrayPath := filepath.Join(r.basePath, name)
	meta, err := loadArrayMeta(arrayPath)
	if err != nil {
		return nil, fmt.Errorf("bundle: loading %s metadata: %w", name, err)
	}
	if meta.Shape[0] != r.metadata.NFeatures || meta.Shape[1] != r.metadata.NCells {
		return nil, fmt.Errorf("bundle: %s shape %v disagrees with manifest %dx%d",
			name, meta.Shape, r.metadata.NFeatures, r.metadata.NCells)
	}

	nr, nc := meta.Shape[0], meta.Shape[1]
	chunkRows, chunkCols := meta.ChunkShape[0], meta.ChunkShape[1]
	nRowChunks := ceilDiv(nr, chunkRows)
	nColChunks := ceilDiv(nc, chunkCols)

	values := make([]float64, nr*nc)
	chunkVals := make([]float64, chunkRows*chunkCols)
	for rowChunk := 0; rowChunk < nRowChunks; rowChunk++ {
		rowStart := rowChunk * chunkRows
		rowLen := min(chunkRows, nr-rowStart)
		for colChunk := 0; colChunk < nColChunks; colChunk++ {
			colStart := colChunk * chunkCols
			colLen := min(chunkCols, nc-colStart)

			chunk := chunkVals[:rowLen*colLen]
			if err := r.readChunkAt(name, arrayPath, rowChunk, colChunk, chunk); err != nil {
				return nil, fmt.Errorf("bundle: reading %s chunk %d/%d: %w", name, rowChunk, colChunk, err)
			}

			for i := 0; i < rowLen; i++ {
				src := chunk[i*colLen : (i+1)*colLen]
				dst := values[(rowStart+i)*nc+colStart:]
				copy(dst, src)
			}
		}
	}

	return tabular.NewMatrix(r.metadata.FeatureNames, r.metadata.CellNames, values)
}

// readChunkAt fills dst with the chunk's values. A chunk absent on disk
// holds only zeros and fills dst accordingly.
func (r *Reader) readChunkAt(name, arrayPath string, rowChunk, colChunk int, dst []float64) error {
	key := fmt.Sprintf("%s:%d/%d", name, rowChunk, colChunk)
	if data, err := r.chunks.Get(key); err == nil {
		return decodeFloats(data, dst)
	}

	compressed, err := os.ReadFile(chunkPath(arrayPath, rowChunk, colChunk))
	if os.IsNotExist(err) {
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	if err != nil {
		return err
	}

	data, err := r.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("zstd decompress failed: %w", err)
	}
	_ = r.chunks.Set(key, data)
	return decodeFloats(data, dst)
}

// Close releases the decoder and chunk cache.
func (r *Reader) Close() error {
	if r.decoder != nil {
		r.decoder.Close()
	}
	if r.chunks != nil {
		return r.chunks.Close()
	}
	return nil
}
