// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for clove
// settings snapshots. It wraps filippo.io/age for the specific
// operations clove needs: generate x25519 keypairs, encrypt to
// multiple recipients, and decrypt with a private key.
//
// Ciphertext is base64-encoded for storage in a plain text or YAML
// file on disk. Callers pass plaintext []byte to [Encrypt] and receive
// a base64 string; [Decrypt] accepts a base64 string and returns
// plaintext. Private keys and decrypted plaintext are returned as
// [secret.Buffer] values backed by mmap memory outside the Go heap
// (locked against swap, excluded from core dumps, zeroed on Close).
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair in a secret.Buffer
//   - [Encrypt] / [EncryptJSON] -- encrypt to age public key recipients
//   - [Decrypt] / [DecryptJSON] -- decrypt with a secret.Buffer key
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Used by clove-ctl's "config show --seal-to" to write a full
// (unredacted) settings snapshot, including the resolved LLM API key,
// encrypted to an operator's age public key for backup or escrow.
//
// Depends on lib/secret for secure memory allocation.
package sealed
