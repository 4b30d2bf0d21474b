// Package codec serializes records for the bolt and s3 backends: CBOR with
// Core Deterministic Encoding, and zstd for file content above a threshold.
package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/objectfs/webvfs/pkg/types"
)

// CompressThreshold is the content size above which content is compressed.
const CompressThreshold = 4 << 10

const (
	compressionNone uint8 = 0
	compressionZstd uint8 = 1
)

// envelope is the stored form. Content is compressed independently so
// directory records and small files stay plain CBOR.
type envelope struct {
	Record      types.Record `cbor:"1,keyasint"`
	Compression uint8        `cbor:"2,keyasint,omitempty"`
	RawSize     int64        `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd encoders and decoders are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes rec.
func Marshal(rec *types.Record) ([]byte, error) {
	env := envelope{Record: *rec}
	if len(rec.Content) > CompressThreshold {
		compressed := zstdEncoder.EncodeAll(rec.Content, nil)
		if len(compressed) < len(rec.Content) {
			env.Record.Content = compressed
			env.Compression = compressionZstd
			env.RawSize = int64(len(rec.Content))
		}
	}
	return encMode.Marshal(env)
}

// Unmarshal decodes data produced by Marshal.
func Unmarshal(data []byte) (*types.Record, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	rec := env.Record
	switch env.Compression {
	case compressionNone:
	case compressionZstd:
		content, err := zstdDecoder.DecodeAll(rec.Content, make([]byte, 0, env.RawSize))
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", rec.Path, err)
		}
		if int64(len(content)) != env.RawSize {
			return nil, fmt.Errorf("decompress %s: got %d bytes, expected %d", rec.Path, len(content), env.RawSize)
		}
		rec.Content = content
	default:
		return nil, fmt.Errorf("decode record %s: unknown compression %d", rec.Path, env.Compression)
	}
	return &rec, nil
}
