// Package snapshot persists the in-memory indexes through a blob store.
// Snapshots are self-describing: the header records the codec by name
// and the compression scheme, so any build that knows the format version
// can read any snapshot.
package snapshot

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/melodex/blobstore"
	"github.com/hupe1980/melodex/codec"
	"github.com/hupe1980/melodex/index/memory"
	"github.com/hupe1980/melodex/model"
)

// Compression selects the payload compression scheme.
type Compression uint8

const (
	// CompressionNone stores the payload as-is.
	CompressionNone Compression = 0
	// CompressionLZ4 is fast with a modest ratio; good for hot snapshots.
	CompressionLZ4 Compression = 1
	// CompressionZSTD trades speed for ratio; good for cold storage.
	CompressionZSTD Compression = 2
)

var (
	magic         = [4]byte{'M', 'X', 'S', '0'}
	headerVersion = uint16(1)
)

// Options contains configuration options for writing snapshots.
type Options struct {
	// Codec encodes the payload. Defaults to codec.Default.
	Codec codec.Codec

	// Compression wraps the encoded payload.
	Compression Compression
}

// DefaultOptions contains the default snapshot configuration.
var DefaultOptions = Options{
	Codec:       codec.Default,
	Compression: CompressionZSTD,
}

type songRecord struct {
	SongID   string    `json:"song_id"`
	Mode     string    `json:"mode"`
	Vector   []float32 `json:"vector"`
	Excluded bool      `json:"excluded,omitempty"`
}

type segmentRecord struct {
	SongID       string    `json:"song_id"`
	SegmentIndex int       `json:"segment_index"`
	Mode         string    `json:"mode"`
	Vector       []float32 `json:"vector"`
}

type payload struct {
	Songs    []songRecord    `json:"songs"`
	Segments []segmentRecord `json:"segments,omitempty"`
}

// Save writes the song index and, when segments is non-nil, the segment
// index into one named blob. Either index may be nil to snapshot the
// other alone.
func Save(ctx context.Context, store blobstore.Store, name string, idx *memory.Index, segments *memory.SegmentIndex, optFns ...func(o *Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}

	var p payload
	if idx != nil {
		recs, err := idx.Dump(ctx)
		if err != nil {
			return err
		}
		p.Songs = make([]songRecord, len(recs))
		for i, rec := range recs {
			p.Songs[i] = songRecord{
				SongID:   string(rec.SongID),
				Mode:     rec.Embedding.Mode.String(),
				Vector:   rec.Embedding.Vector,
				Excluded: rec.ExcludedFromSearch,
			}
		}
	}

	if segments != nil {
		segs, err := segments.Dump(ctx)
		if err != nil {
			return err
		}
		p.Segments = make([]segmentRecord, len(segs))
		for i, seg := range segs {
			p.Segments[i] = segmentRecord{
				SongID:       string(seg.SongID),
				SegmentIndex: seg.SegmentIndex,
				Mode:         seg.Embedding.Mode.String(),
				Vector:       seg.Embedding.Vector,
			}
		}
	}

	encoded, err := opts.Codec.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	body, err := compress(encoded, opts.Compression)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	writeHeader(&buf, opts.Codec.Name(), opts.Compression)
	buf.Write(body)

	return store.Put(ctx, name, buf.Bytes())
}

// Load reads a named snapshot back into the indexes. The song index must
// be sized for the snapshot's vectors; either index may be nil to skip
// the corresponding section.
func Load(ctx context.Context, store blobstore.Store, name string, idx *memory.Index, segments *memory.SegmentIndex) error {
	r, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	codecName, compression, body, err := readHeader(raw)
	if err != nil {
		return err
	}

	c, ok := codec.ByName(codecName)
	if !ok {
		return fmt.Errorf("snapshot %s uses unknown codec %q", name, codecName)
	}

	encoded, err := decompress(body, compression)
	if err != nil {
		return err
	}

	var p payload
	if err := c.Unmarshal(encoded, &p); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	if idx == nil {
		p.Songs = nil
	}

	for _, rec := range p.Songs {
		mode, ok := model.ModeByName(rec.Mode)
		if !ok {
			return fmt.Errorf("snapshot %s contains unknown mode %q", name, rec.Mode)
		}
		err := idx.Put(ctx, model.SongRecord{
			SongID:             model.SongID(rec.SongID),
			Embedding:          model.NewEmbedding(mode, rec.Vector),
			ExcludedFromSearch: rec.Excluded,
		})
		if err != nil {
			return err
		}
	}

	if segments == nil || len(p.Segments) == 0 {
		return nil
	}

	segs := make([]model.SegmentEmbedding, len(p.Segments))
	for i, rec := range p.Segments {
		mode, ok := model.ModeByName(rec.Mode)
		if !ok {
			return fmt.Errorf("snapshot %s contains unknown mode %q", name, rec.Mode)
		}
		segs[i] = model.SegmentEmbedding{
			SongID:       model.SongID(rec.SongID),
			SegmentIndex: rec.SegmentIndex,
			Embedding:    model.NewEmbedding(mode, rec.Vector),
		}
	}
	return segments.PutSegments(ctx, segs)
}

// Header layout: magic(4) version(2) compression(1) codecNameLen(1) codecName.
func writeHeader(buf *bytes.Buffer, codecName string, compression Compression) {
	buf.Write(magic[:])

	var fixed [4]byte
	binary.LittleEndian.PutUint16(fixed[0:2], headerVersion)
	fixed[2] = byte(compression)
	fixed[3] = byte(len(codecName))
	buf.Write(fixed[:])
	buf.WriteString(codecName)
}

func readHeader(raw []byte) (codecName string, compression Compression, body []byte, err error) {
	if len(raw) < 8 || !bytes.Equal(raw[:4], magic[:]) {
		return "", 0, nil, fmt.Errorf("unsupported snapshot format: invalid header magic")
	}

	version := binary.LittleEndian.Uint16(raw[4:6])
	if version != headerVersion {
		return "", 0, nil, fmt.Errorf("unsupported snapshot header version: %d", version)
	}

	compression = Compression(raw[6])
	nameLen := int(raw[7])
	if len(raw) < 8+nameLen {
		return "", 0, nil, fmt.Errorf("truncated snapshot header")
	}

	return string(raw[8 : 8+nameLen]), compression, raw[8+nameLen:], nil
}

func compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZSTD:
		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression scheme: %d", compression)
	}
}

func decompress(body []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return body, nil
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(body)))
	case CompressionZSTD:
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown compression scheme: %d", compression)
	}
}
