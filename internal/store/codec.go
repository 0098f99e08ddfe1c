package store

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/entitybridge/internal/ir"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// sys always produces identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// marshalSys encodes a sys snapshot for the transition log.
func marshalSys(sys ir.EntitySys) ([]byte, error) {
	data, err := encMode.Marshal(sys)
	if err != nil {
		return nil, fmt.Errorf("marshal sys: %w", err)
	}
	return data, nil
}

// unmarshalSys decodes a sys snapshot.
func unmarshalSys(data []byte) (ir.EntitySys, error) {
	var sys ir.EntitySys
	if err := decMode.Unmarshal(data, &sys); err != nil {
		return ir.EntitySys{}, fmt.Errorf("unmarshal sys: %w", err)
	}
	return sys, nil
}

// marshalFields converts field data to JSON TEXT for storage.
// Field values are arbitrary JSON, so canonical encoding does not apply.
func marshalFields(fields map[string]map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses JSON TEXT back into field data.
func unmarshalFields(data string) (map[string]map[string]any, error) {
	fields := map[string]map[string]any{}
	if data == "" || data == "{}" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}
