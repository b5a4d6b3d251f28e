// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package policy holds the Mint Policy object: its startup validation
// preconditions and the script-hashing helper shared with
// cmd/mk-policy-script.
package policy

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// NativeScriptTag is the leading byte that distinguishes native
// (non-Plutus) scripts when hashing, per the ledger's script-hash
// preimage convention: a script tag byte followed by the script's raw
// CBOR bytes.
const NativeScriptTag = 0

// HashScript computes the 28-byte policy id for a script, given its
// raw (CBOR-encoded) bytes and its tag byte (0 for native / timelock
// scripts, 1/2 for Plutus V1/V2). This is the same computation
// cmd/mk-policy-script performs to print a script's address.
func HashScript(tag byte, scriptBytes []byte) ([]byte, error) {
	h, err := blake2b.New(28, nil)
	if err != nil {
		return nil, fmt.Errorf("policy: creating blake2b hasher: %w", err)
	}
	h.Write([]byte{tag})
	h.Write(scriptBytes)
	return h.Sum(nil), nil
}

// HashScriptHex is HashScript with a hex-encoded result.
func HashScriptHex(tag byte, scriptBytes []byte) (string, error) {
	sum, err := HashScript(tag, scriptBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
