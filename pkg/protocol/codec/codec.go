// Package codec provides the serialization formats used for frame traces
// and tooling output. The wire format itself is fixed binary and lives in
// package protocol; these codecs never touch the air.
package codec

import (
	"encoding/json"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

// Codec marshals typed records deterministically.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// ByName resolves a codec from a short format name ("json" or "cbor").
func ByName(name string) (Codec, error) {
	switch name {
	case "json":
		return JSON(), nil
	case "cbor":
		return CBOR()
	default:
		return nil, fmt.Errorf("codec: unknown format %q", name)
	}
}

type jsonCodec struct{}

// JSON returns a JSON codec (RFC 8259). Content-Type: application/json
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string              { return "application/json" }
func (jsonCodec) Marshal(v any) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec using the library's canonical
// encoding mode (RFC 7049 canonical CBOR).
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil { return nil, err }
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil { return nil, err }
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string               { return "application/cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error)     { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
