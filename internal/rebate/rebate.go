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

// Package rebate computes the minimum-lovelace surcharge ("rebate") that
// a UTxO carrying newly minted native assets must hold to satisfy the
// chain's minimum-UTXO rule (spec §4.A).
package rebate

// Formula is the injectable closed-form function used to compute the
// rebate: given p distinct policies, a distinct asset names, and n the
// total byte length of those names, it returns the required lovelace.
// Tests and callers may substitute an alternate Formula to model a
// different protocol-parameter regime without touching call sites.
type Formula func(p, a, n int) uint64

// coinsPerUtxoWord is the Alonzo-era utxoCostPerWord protocol parameter
// (34482 lovelace per 8-byte word) this calculator reproduces. Later
// protocol eras replaced it with a per-byte coinsPerUTxOByte parameter;
// this calculator models the word-based bundle-size formula, which is
// what the minimum-UTxO amounts in circulation for NFT mints (1379280
// lovelace for a single asset with an 11-byte name) derive from.
const coinsPerUtxoWord = 34482

// utxoEntrySizeWithoutVal is the fixed word cost of a UTxO entry
// before its value: 27 words per the ledger's utxoEntrySize.
const utxoEntrySizeWithoutVal = 27

// coinWords is the word cost of an ada-only value. An ada-only UTxO
// therefore costs (27 + 2) * 34482 = 999978 lovelace, the chain's
// familiar ~1 ada floor.
const coinWords = 2

// Default is the standard rebate formula: the Alonzo/Mary "bundle
// size" computation. It reproduces the chain's rule for the minimum
// lovelace a UTxO must carry to hold p policies, a distinct asset
// names, whose names total n bytes.
//
//	minAda = (utxoEntrySizeWithoutVal + bundleSizeWords(p, a, n)) * coinsPerUtxoWord
//
// With no assets it degrades to the ada-only floor (999978 lovelace),
// which is also the minimum change output a buyer refund must carry.
// bundleSizeWords follows the CDDL-derived formula from the Cardano
// ledger spec for value-bundle encoding: a fixed per-asset/per-policy
// overhead plus the asset names rounded up to whole words.
func Default(p, a, n int) uint64 {
	if a == 0 {
		return (utxoEntrySizeWithoutVal + coinWords) * coinsPerUtxoWord
	}
	words := bundleSizeWords(p, a, n)
	return uint64(utxoEntrySizeWithoutVal+words) * coinsPerUtxoWord
}

// bundleSizeWords implements the ledger's sizeBundle calculation:
//
//	roundupBytesToWords(a*12 + n + p*28) + 6
//
// where each asset contributes a fixed 12-byte overhead (4-byte length
// prefix plus up to 8 bytes of quantity encoding), each policy id
// contributes its 28-byte hash, asset names contribute their raw byte
// length, and 6 words cover the outer map/array framing. Byte counts
// are rounded up to the nearest 8-byte word.
func bundleSizeWords(p, a, n int) int {
	numBytes := a*12 + n + p*28
	return roundupBytesToWords(numBytes) + 6
}

func roundupBytesToWords(b int) int {
	return (b + 7) / 8
}

// Calculate applies the Default formula.
func Calculate(p, a, n int) uint64 {
	return Default(p, a, n)
}

// CalculateWith applies an injected Formula, allowing callers (notably
// tests predicting profit under alternate protocol parameters) to swap
// out the minimum-UTXO rule without touching the rest of the vending
// pipeline.
func CalculateWith(f Formula, p, a, n int) uint64 {
	return f(p, a, n)
}
