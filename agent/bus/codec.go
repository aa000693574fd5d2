package bus

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Core deterministic encoding: sorted map keys, shortest integers, no
// indefinite-length items.
var cborEnc cbor.EncMode

var cborDec cbor.DecMode

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bus: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("bus: CBOR decoder initialization failed: " + err.Error())
	}
}

// jsonToCBOR re-encodes a JSON document as CBOR through its generic form so
// the message structs need no cbor tags.
func jsonToCBOR(body []byte) ([]byte, error) {
	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("cbor: decode json: %w", err)
	}
	return cborEnc.Marshal(generic)
}

func cborToJSON(body []byte) ([]byte, error) {
	var generic any
	if err := cborDec.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("cbor: decode: %w", err)
	}
	return json.Marshal(generic)
}
