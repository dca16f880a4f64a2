// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode and decMode enforce deterministic CBOR (RFC 8949 §4.2 Core
// Deterministic Encoding): sorted map keys, canonical integer widths.
// A world snapshot is hashed with BLAKE3 for tamper evidence, so the
// same world state must always produce identical bytes.
var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("world: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("world: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshalCBOR(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshalCBOR(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
