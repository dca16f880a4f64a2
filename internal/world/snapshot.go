// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/zeebo/blake3"
)

// snapshotDomainKey separates world-snapshot hashes from every other
// BLAKE3 use in the kernel (the execution log export hashes with
// unkeyed BLAKE3-256), so an identical byte string hashed in two
// contexts never collides.
var snapshotDomainKey = mustDomainKey("clove.world.snapshot")

func mustDomainKey(label string) [32]byte {
	var key [32]byte
	copy(key[:], label)
	return key
}

// worldWire is the CBOR wire form of a World: everything except the
// mutex and the live membership set, which are process-local and have
// no place in a portable snapshot.
type worldWire struct {
	ID        string            `cbor:"1,keyasint"`
	Name      string            `cbor:"2,keyasint"`
	CreatedAt time.Time         `cbor:"3,keyasint"`
	Files     map[string][]byte `cbor:"4,keyasint"`
	Chaos     []ChaosRule       `cbor:"5,keyasint"`
	Events    []worldEvent      `cbor:"6,keyasint"`
}

// snapshotOf CBOR-encodes the world's full state and returns the
// encoded bytes alongside a keyed BLAKE3 digest of those bytes, hex
// encoded. The digest is the snapshot id: restoring a snapshot and
// re-snapshotting it immediately reproduces the same id.
func snapshotOf(w *World) (data []byte, digestHex string, err error) {
	w.mu.Lock()
	wire := worldWire{
		ID:        w.ID,
		Name:      w.Name,
		CreatedAt: w.CreatedAt,
		Files:     w.Files,
		Chaos:     w.Chaos,
		Events:    w.Events,
	}
	w.mu.Unlock()

	data, err = marshalCBOR(&wire)
	if err != nil {
		return nil, "", err
	}
	hasher, err := blake3.NewKeyed(snapshotDomainKey[:])
	if err != nil {
		return nil, "", err
	}
	hasher.Write(data)
	return data, hex.EncodeToString(hasher.Sum(nil)), nil
}

// encodeSnapshot is the wire form WORLD_SNAPSHOT returns to the client:
// the CBOR bytes, base64 encoded for embedding in a JSON response.
func encodeSnapshot(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func decodeSnapshot(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}

// restoreFrom decodes a CBOR-encoded world blob into a fresh World
// that keeps the snapshot's id, so re-snapshotting it reproduces the
// same digest. handleRestore replaces that id with a new one before
// registering the world.
func restoreFrom(data []byte) (*World, error) {
	var wire worldWire
	if err := unmarshalCBOR(data, &wire); err != nil {
		return nil, err
	}
	w := &World{
		ID:        wire.ID,
		Name:      wire.Name,
		CreatedAt: wire.CreatedAt,
		Files:     wire.Files,
		Chaos:     wire.Chaos,
		Events:    wire.Events,
		Members:   make(map[uint32]bool),
	}
	if w.Files == nil {
		w.Files = make(map[string][]byte)
	}
	for _, ev := range w.Events {
		if ev.Seq > w.nextSeq {
			w.nextSeq = ev.Seq
		}
	}
	return w, nil
}
