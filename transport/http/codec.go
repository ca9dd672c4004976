package http

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/hupe1980/agentrelay/core"
)

// Content types understood by the transport.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Codec encodes messages on the wire.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(m core.Message) ([]byte, error)
	Unmarshal(data []byte, m *core.Message) error
}

// JSONCodec encodes messages as JSON.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return "json" }
func (JSONCodec) ContentType() string { return ContentTypeJSON }

func (JSONCodec) Marshal(m core.Message) ([]byte, error) { return json.Marshal(m) }

func (JSONCodec) Unmarshal(data []byte, m *core.Message) error { return json.Unmarshal(data, m) }

// CBORCodec encodes messages with CBOR core deterministic encoding, so the
// same message always produces the same bytes.
type CBORCodec struct{}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("transport/http: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("transport/http: CBOR decoder initialization failed: " + err.Error())
	}
}

func (CBORCodec) Name() string        { return "cbor" }
func (CBORCodec) ContentType() string { return ContentTypeCBOR }

func (CBORCodec) Marshal(m core.Message) ([]byte, error) { return cborEnc.Marshal(m) }

func (CBORCodec) Unmarshal(data []byte, m *core.Message) error { return cborDec.Unmarshal(data, m) }

// CodecByName returns the codec for "json" (or "") and "cbor".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// codecForContentType picks the decoder for an inbound request.
func codecForContentType(ct string) Codec {
	if strings.HasPrefix(ct, ContentTypeCBOR) {
		return CBORCodec{}
	}
	return JSONCodec{}
}
