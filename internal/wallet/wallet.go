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

// Package wallet loads the signing material the vending machine and
// its tx-assembler subprocess need: a bursa mnemonic-derived wallet for
// the machine's own payment address (fee/collateral UTxOs, change), and
// raw Cardano TextEnvelope signing-key files for the policy script key
// (spec §3 "Mint Policy"). Grounded on shai's `wallet.GetWallet()` call
// sites (internal/geniusyield/tx.go, internal/spectrum/tx.go), which
// return a *bursa.Wallet-shaped value exposing PaymentAddress,
// PaymentVKey.CborHex and PaymentExtendedSKey.CborHex.
package wallet

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	apollokey "github.com/Salvionied/apollo/serialization/Key"
	"github.com/blinklabs-io/bursa"
)

// Wallet wraps a bursa mnemonic-derived wallet.
type Wallet struct {
	*bursa.Wallet
}

var global *Wallet

// Load derives the vending machine's own payment wallet from the
// configured mnemonic. mainnet selects network id 1, any other network
// selects the testnet network id bursa expects for derivation.
func Load(mnemonic string, mainnet bool) (*Wallet, error) {
	if mnemonic == "" {
		return nil, fmt.Errorf("wallet: no mnemonic configured")
	}
	network := "testnet"
	if mainnet {
		network = "mainnet"
	}
	w, err := bursa.NewWallet(mnemonic, network, 0, 0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("wallet: deriving wallet from mnemonic: %w", err)
	}
	global = &Wallet{Wallet: w}
	return global, nil
}

// GetWallet returns the process-wide wallet loaded by Load.
func GetWallet() *Wallet {
	return global
}

// VerificationAndSigningKeys returns the raw (CBOR-prefix-stripped)
// verification and signing key bytes for the wallet's payment key, in
// the form apollo's Key.VerificationKey/SigningKey expect. Mirrors the
// stripping shai performs inline before calling tx.SignWithSkey in
// internal/geniusyield/tx.go and internal/spectrum/tx.go.
func (w *Wallet) VerificationAndSigningKeys() (apollokey.VerificationKey, apollokey.SigningKey, error) {
	vKeyBytes, err := hex.DecodeString(w.PaymentVKey.CborHex)
	if err != nil {
		return apollokey.VerificationKey{}, apollokey.SigningKey{}, fmt.Errorf("wallet: decoding vkey: %w", err)
	}
	sKeyBytes, err := hex.DecodeString(w.PaymentExtendedSKey.CborHex)
	if err != nil {
		return apollokey.VerificationKey{}, apollokey.SigningKey{}, fmt.Errorf("wallet: decoding skey: %w", err)
	}
	// Strip the 2-byte CBOR bytestring-length prefix.
	vKeyBytes = vKeyBytes[2:]
	sKeyBytes = sKeyBytes[2:]
	// Extended private keys carry a trailing public key; drop it.
	sKeyBytes = append(sKeyBytes[:64], sKeyBytes[96:]...)

	return apollokey.VerificationKey{Payload: vKeyBytes}, apollokey.SigningKey{Payload: sKeyBytes}, nil
}

// TextEnvelope is the standard Cardano CLI key-file JSON shape used for
// policy script signing keys (spec §3 "signing key path").
type TextEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	CborHex     string `json:"cborHex"`
}

// LoadSigningKeyFile reads a TextEnvelope-format signing key file (the
// policy script's signing key, per spec §4.D "signing_key path"), and
// returns both halves of the keypair ready for apollo's SignWithSkey.
// A plain (non-extended) Cardano signing key's cborHex is a 32-byte
// Ed25519 seed; its verification key is derived with
// ed25519.NewKeyFromSeed rather than read from a separate .vkey file,
// since only signing_key_path is part of the Mint Policy (spec §3).
func LoadSigningKeyFile(path string) (apollokey.VerificationKey, apollokey.SigningKey, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return apollokey.VerificationKey{}, apollokey.SigningKey{}, fmt.Errorf("wallet: reading signing key file %s: %w", path, err)
	}
	var env TextEnvelope
	if err := json.Unmarshal(buf, &env); err != nil {
		return apollokey.VerificationKey{}, apollokey.SigningKey{}, fmt.Errorf("wallet: parsing signing key file %s: %w", path, err)
	}
	keyBytes, err := hex.DecodeString(env.CborHex)
	if err != nil {
		return apollokey.VerificationKey{}, apollokey.SigningKey{}, fmt.Errorf("wallet: decoding cborHex in %s: %w", path, err)
	}
	// Strip the 2-byte CBOR bytestring-length prefix shai strips inline
	// for the wallet's own keys.
	if len(keyBytes) > 2 {
		keyBytes = keyBytes[2:]
	}
	if len(keyBytes) != ed25519.SeedSize {
		return apollokey.VerificationKey{}, apollokey.SigningKey{}, fmt.Errorf(
			"wallet: %s is not a %d-byte Ed25519 seed (got %d bytes)", path, ed25519.SeedSize, len(keyBytes),
		)
	}
	priv := ed25519.NewKeyFromSeed(keyBytes)
	pub := priv.Public().(ed25519.PublicKey)
	return apollokey.VerificationKey{Payload: pub}, apollokey.SigningKey{Payload: keyBytes}, nil
}
