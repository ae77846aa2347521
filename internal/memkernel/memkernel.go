// Package memkernel is a reference in-memory implementation of
// segment.Segment: brute-force linear kNN over fp32/fp16 vectors, plus a
// JSON manifest on disk so IndexService's manifest-presence check has
// something real to find. It exists so the service is runnable end to end
// without a production vector-index kernel wired in.
package memkernel

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/alibaba/proxima-sub000/internal/segment"
	"github.com/alibaba/proxima-sub000/internal/value"
)

type doc struct {
	PK      uint64
	Vectors map[string][]float32
	Forward []byte
}

// Segment is a brute-force, single-column-per-query in-memory kernel.
type Segment struct {
	id          uint64
	dir         string
	columnOrder []string // schema.IndexColumns() order, for zipping Insert's positional vals

	mu   sync.RWMutex
	docs map[uint64]*doc
}

// New builds a Segment, loading any existing manifest.<id>.json under
// dir/<name>.
// columnOrder names the collection's index columns in the same order
// Collection.WriteRecords passes values to Insert — index columns are
// fixed across revisions, so this order never changes for a collection's
// lifetime.
func New(dir, name string, id uint64, concurrency int, columnOrder []string) (segment.Segment, error) {
	_ = concurrency
	segDir := filepath.Join(dir, name)
	if err := os.MkdirAll(segDir, 0o755); err != nil {
		return nil, fmt.Errorf("memkernel: create segment dir: %w", err)
	}
	s := &Segment{id: id, dir: segDir, columnOrder: columnOrder, docs: make(map[uint64]*doc)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Segment) manifestPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("manifest.%d.json", s.id))
}

type onDiskDoc struct {
	PK      uint64
	Vectors map[string][]float32
	Forward []byte
}

func (s *Segment) load() error {
	data, err := os.ReadFile(s.manifestPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("memkernel: read manifest: %w", err)
	}
	var onDisk []onDiskDoc
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return fmt.Errorf("memkernel: parse manifest: %w", err)
	}
	for _, d := range onDisk {
		s.docs[d.PK] = &doc{PK: d.PK, Vectors: d.Vectors, Forward: d.Forward}
	}
	return nil
}

func (s *Segment) ID() uint64 { return s.id }

func (s *Segment) DocCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.docs))
}

func (s *Segment) Insert(_ context.Context, pk uint64, indexValues []value.Value, forward []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vecs := make(map[string][]float32, len(s.columnOrder))
	for i, name := range s.columnOrder {
		if i >= len(indexValues) || indexValues[i].IsNull() {
			continue
		}
		vec, err := toFloat32Vector(indexValues[i])
		if err != nil {
			return fmt.Errorf("memkernel: column %q: %w", name, err)
		}
		vecs[name] = vec
	}
	s.docs[pk] = &doc{PK: pk, Vectors: vecs, Forward: forward}
	return nil
}

// toFloat32Vector projects a tagged Value holding packed vector bytes into
// a float32 slice. Forward-only writes (no index value) never reach here.
func toFloat32Vector(v value.Value) ([]float32, error) {
	raw := v.Bytes()
	if raw == nil {
		return nil, fmt.Errorf("expected bytes-encoded feature vector, got kind %v", v.Kind())
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("feature vector length %d not a multiple of 4", len(raw))
	}
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		off := i * 4
		bits := uint32(raw[off]) | uint32(raw[off+1])<<8 | uint32(raw[off+2])<<16 | uint32(raw[off+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func (s *Segment) Remove(_ context.Context, pk uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, pk)
	return nil
}

func (s *Segment) KVSearch(_ context.Context, pk uint64) (segment.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[pk]
	if !ok {
		return segment.QueryResult{PrimaryKey: segment.InvalidKey}, nil
	}
	return segment.QueryResult{PrimaryKey: d.PK, ForwardData: d.Forward}, nil
}

func (s *Segment) KNNSearch(_ context.Context, column string, features []byte, params segment.QueryParams, batch uint32) ([]segment.QueryResultList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dim := int(params.Dimension)
	if dim == 0 {
		return nil, fmt.Errorf("memkernel: zero dimension")
	}
	queries, err := unpackFeatures(features, params.DataType, dim, int(batch))
	if err != nil {
		return nil, err
	}

	out := make([]segment.QueryResultList, len(queries))
	for bi, q := range queries {
		var results segment.QueryResultList
		for _, d := range s.docs {
			vec, ok := d.Vectors[column]
			if !ok {
				continue
			}
			results = append(results, segment.QueryResult{
				PrimaryKey:  d.PK,
				Score:       squaredEuclidean(q, vec),
				ForwardData: d.Forward,
			})
		}
		sortByScore(results)
		if int(params.TopK) < len(results) {
			results = results[:params.TopK]
		}
		out[bi] = results
	}
	return out, nil
}

func (s *Segment) Optimize(context.Context) error { return nil }

func (s *Segment) Flush(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	onDisk := make([]onDiskDoc, 0, len(s.docs))
	for _, d := range s.docs {
		onDisk = append(onDisk, onDiskDoc{PK: d.PK, Vectors: d.Vectors, Forward: d.Forward})
	}
	data, err := json.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("memkernel: marshal manifest: %w", err)
	}
	if err := os.WriteFile(s.manifestPath(), data, 0o644); err != nil {
		return err
	}
	// The empty "manifest" marker is what IndexService's presence probe looks for.
	return os.WriteFile(filepath.Join(s.dir, "manifest"), nil, 0o644)
}

func squaredEuclidean(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func sortByScore(r segment.QueryResultList) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && segment.Less(r[j], r[j-1]); j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}

func unpackFeatures(features []byte, dt value.DataType, dim, batch int) ([][]float32, error) {
	out := make([][]float32, batch)
	switch dt {
	case value.DataTypeFP32:
		need := batch * dim * 4
		if len(features) < need {
			return nil, fmt.Errorf("memkernel: fp32 feature buffer too short: need %d, have %d", need, len(features))
		}
		for b := 0; b < batch; b++ {
			vec := make([]float32, dim)
			for i := 0; i < dim; i++ {
				off := (b*dim + i) * 4
				bits := uint32(features[off]) | uint32(features[off+1])<<8 |
					uint32(features[off+2])<<16 | uint32(features[off+3])<<24
				vec[i] = math.Float32frombits(bits)
			}
			out[b] = vec
		}
	case value.DataTypeFP16:
		need := batch * dim * 2
		if len(features) < need {
			return nil, fmt.Errorf("memkernel: fp16 feature buffer too short: need %d, have %d", need, len(features))
		}
		for b := 0; b < batch; b++ {
			vec := make([]float32, dim)
			for i := 0; i < dim; i++ {
				off := (b*dim + i) * 2
				bits := uint16(features[off]) | uint16(features[off+1])<<8
				vec[i] = fp16ToFp32(bits)
			}
			out[b] = vec
		}
	default:
		return nil, fmt.Errorf("memkernel: unsupported data type %v", dt)
	}
	return out, nil
}

func fp16ToFp32(h uint16) float32 {
	sign := uint32(h>>15) & 1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h) & 0x3FF
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			exp = 127 - 15 + 1
			for frac&0x400 == 0 {
				frac <<= 1
				exp--
			}
			frac &= 0x3FF
			f = sign<<31 | exp<<23 | frac<<13
		}
	case 0x1F:
		f = sign<<31 | 0xFF<<23 | frac<<13
	default:
		f = sign<<31 | (exp-15+127)<<23 | frac<<13
	}
	return math.Float32frombits(f)
}
