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

// Package assembler defines the Transaction Assembler contract (spec
// §4.F) and a subprocess-backed implementation that shells out to
// cmd/tx-assembler, the out-of-scope "transaction builder/submitter"
// collaborator spec §1/§6 names. Grounded on
// 36thchambersoftware/flowmass's engine.go, which treats
// BuildTransaction/SignTransaction/SubmitTransaction as a subprocess
// call (exec.CommandContext against cardano-cli); here the three steps
// are collapsed into one subprocess invocation speaking a small JSON
// protocol on stdin/stdout instead of shelling out a second time per
// step.
package assembler

import (
	"encoding/json"

	"github.com/blinklabs-io/cnftvend/internal/common"
)

// Kind distinguishes a recoverable rejection from a timeout (spec §7
// AssemblerError(Rejected|Timeout)).
type Kind int

const (
	Rejected Kind = iota
	Timeout
)

// Error wraps an assembler failure with its classification. Both kinds
// are terminal for the triggering UTxO within the session (spec §7):
// Rejected because resubmission would reuse already-consumed inputs,
// Timeout because a second attempt risks double-minting if the first
// transaction actually lands.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	kind := "rejected"
	if e.Kind == Timeout {
		kind = "timeout"
	}
	return "assembler: " + kind + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Output is one transaction output: a destination address, lovelace,
// and any native assets it carries.
type Output struct {
	Address    string            `json:"address"`
	Lovelace   uint64            `json:"lovelace"`
	Multiasset map[string]uint64 `json:"multiasset,omitempty"`
}

// MintAsset is a single native asset to mint under the policy, with its
// metadata to be embedded under label 721.
type MintAsset struct {
	PolicyId  string          `json:"policyId"`
	NameHex   string          `json:"nameHex"`
	AssetName string          `json:"assetName"`
	Quantity  int64           `json:"quantity"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Request is the full instruction set for one mint+pay+refund
// transaction (spec §4.E step g, §4.F).
type Request struct {
	RequestId   string         `json:"requestId"`
	Network     string         `json:"network"`
	Inputs      []common.TxRef `json:"inputs"`
	Outputs     []Output       `json:"outputs"`
	Mint        []MintAsset    `json:"mint"`
	ScriptFiles []string       `json:"scriptFiles"`
	SigningKeys []string       `json:"signingKeys"`
}

// Response is cmd/tx-assembler's reply on stdout.
type Response struct {
	RequestId string `json:"requestId"`
	TxHash    string `json:"txHash,omitempty"`
	Error     string `json:"error,omitempty"`
	Timeout   bool   `json:"timeout,omitempty"`
}
