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

// Package submit implements the two network-submission backends used
// only by cmd/tx-assembler: a Blockfrost-compatible HTTP submit
// endpoint, and a direct node-to-node (NtN) TxSubmission handshake.
// Unlike the teacher's fire-and-forget channel dispatch, both backends
// here are synchronous: the caller gets a tx hash or an error back, as
// required by the Transaction Assembler contract (spec §4.F).
package submit

import (
	"context"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger"
)

// Backend submits a signed, CBOR-encoded transaction and returns its
// hash once the network has accepted it (not finality — spec §4.F:
// "callers must not assume the transaction is final").
type Backend interface {
	Submit(ctx context.Context, txRawBytes []byte) (string, error)
}

// txHash parses just enough of the transaction to report its hash
// ahead of submission, for logging and for backends (NtN) that must
// advertise the tx id before the body is requested.
func txHash(txRawBytes []byte) (string, uint, error) {
	txType, err := ledger.DetermineTransactionType(txRawBytes)
	if err != nil {
		return "", 0, fmt.Errorf("submit: determining transaction type: %w", err)
	}
	tx, err := ledger.NewTransactionFromCbor(txType, txRawBytes)
	if err != nil {
		return "", 0, fmt.Errorf("submit: parsing transaction cbor: %w", err)
	}
	return tx.Hash(), txType, nil
}

// Config selects which backend Dial constructs, mirroring the
// config.SubmitConfig precedence shai itself used for its channel-based
// dispatcher: an explicit Blockfrost-compatible URL wins, otherwise NtN
// dial to the configured topology hosts (or the network's public root
// if none are configured).
type Config struct {
	Url          string
	Hosts        []Host
	NetworkMagic uint32
	// PublicRootAddress/PublicRootPort back NtN dial when no explicit
	// topology hosts are configured (gouroboros NetworkByName default).
	PublicRootAddress string
	PublicRootPort    uint
}

// Host is one NtN dial target.
type Host struct {
	Address string
	Port    uint
}

// Dial constructs the configured Backend.
func Dial(cfg Config) (Backend, error) {
	if cfg.Url != "" {
		return NewHTTPBackend(cfg.Url), nil
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		if cfg.PublicRootAddress == "" {
			return nil, fmt.Errorf("submit: no submit URL, topology hosts, or network public root configured")
		}
		hosts = []Host{{Address: cfg.PublicRootAddress, Port: cfg.PublicRootPort}}
	}
	return NewNtNBackend(cfg.NetworkMagic, hosts), nil
}
