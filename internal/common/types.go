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

// Package common holds the data model shared by every vending-machine
// component: asset ids, UTxOs, and transaction references.
package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// PolicyIdLen is the length in bytes of a Cardano native-asset policy id.
const PolicyIdLen = 28

// AssetId identifies a native asset as the concatenation of its 28-byte
// policy id and its (possibly empty) asset name.
type AssetId struct {
	PolicyId []byte
	Name     []byte
}

// NewAssetIdFromHex parses the 56-hex-char policy id followed by the
// hex-encoded asset name, as used on disk and on the wire (spec §6).
func NewAssetIdFromHex(assetIdHex string) (AssetId, error) {
	if len(assetIdHex) < PolicyIdLen*2 {
		return AssetId{}, fmt.Errorf(
			"asset id %q shorter than a policy id (%d hex chars)",
			assetIdHex,
			PolicyIdLen*2,
		)
	}
	policyIdHex := assetIdHex[:PolicyIdLen*2]
	nameHex := assetIdHex[PolicyIdLen*2:]
	policyId, err := hex.DecodeString(policyIdHex)
	if err != nil {
		return AssetId{}, fmt.Errorf("invalid policy id hex: %w", err)
	}
	name, err := hex.DecodeString(nameHex)
	if err != nil {
		return AssetId{}, fmt.Errorf("invalid asset name hex: %w", err)
	}
	return AssetId{PolicyId: policyId, Name: name}, nil
}

// Hex returns the 56-hex-char policy id concatenated with the
// hex-encoded asset name, lowercase, no 0x prefix.
func (a AssetId) Hex() string {
	return strings.ToLower(hex.EncodeToString(a.PolicyId) + hex.EncodeToString(a.Name))
}

// PolicyIdHex returns the policy id as a hex string.
func (a AssetId) PolicyIdHex() string {
	return hex.EncodeToString(a.PolicyId)
}

// String implements fmt.Stringer.
func (a AssetId) String() string {
	return a.Hex()
}

// AssetNameHex hex-encodes a human-readable asset name.
func AssetNameHex(name string) string {
	return hex.EncodeToString([]byte(name))
}

// HexToAssetName decodes a hex-encoded asset name back to UTF-8. It is
// the inverse of AssetNameHex for valid UTF-8 names (spec §6).
func HexToAssetName(nameHex string) (string, error) {
	b, err := hex.DecodeString(nameHex)
	if err != nil {
		return "", fmt.Errorf("invalid asset name hex: %w", err)
	}
	return string(b), nil
}

// TxRef addresses a single transaction output: (tx_hash, output_index).
type TxRef struct {
	Hash  string
	Index uint32
}

// String renders the ref in the conventional "hash#index" form.
func (r TxRef) String() string {
	return fmt.Sprintf("%s#%d", r.Hash, r.Index)
}

// Key returns the form used as a storage/exclusion-set key.
func (r TxRef) Key() string {
	return fmt.Sprintf("%s.%d", r.Hash, r.Index)
}

// UTxO is the unit of payment and the unit of exclusion (spec §3).
type UTxO struct {
	Ref        TxRef
	Address    string
	Lovelace   uint64
	Multiasset map[string]uint64 // AssetId.Hex() -> quantity
}

// HasAsset reports whether the UTxO carries a positive quantity of the
// given asset id.
func (u UTxO) HasAsset(a AssetId) bool {
	qty, ok := u.Multiasset[a.Hex()]
	return ok && qty > 0
}

// Transaction is the originating transaction of a candidate UTxO
// (spec §3 "Transaction reference"). Inputs and ReferenceInputs are
// resolved to their full value (address, lovelace, multiasset map) so
// that whitelist eligibility can be decided without a second indexer
// round trip per input, mirroring a Blockfrost-style "tx UTxOs"
// response.
type Transaction struct {
	Hash            string
	Inputs          []UTxO
	ReferenceInputs []UTxO
	Outputs         []UTxO
	Fees            uint64
}

// SpentAssets returns every distinct AssetId present with positive
// quantity across the transaction's spending inputs (never reference
// inputs) whose policy id matches policyIdHex.
func (t Transaction) SpentAssets(policyIdHex string) []AssetId {
	var found []AssetId
	seen := map[string]struct{}{}
	for _, in := range t.Inputs {
		for assetHex, qty := range in.Multiasset {
			if qty == 0 || !strings.HasPrefix(assetHex, policyIdHex) {
				continue
			}
			if _, ok := seen[assetHex]; ok {
				continue
			}
			asset, err := NewAssetIdFromHex(assetHex)
			if err != nil {
				continue
			}
			seen[assetHex] = struct{}{}
			found = append(found, asset)
		}
	}
	return found
}
