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

package submit

import (
	"context"
	"encoding/hex"
	"fmt"

	ouroboros "github.com/blinklabs-io/gouroboros"
	"github.com/blinklabs-io/gouroboros/protocol/txsubmission"
)

// NtNBackend submits a transaction by dialing a node directly and
// running a one-shot TxSubmission client handshake: advertise the
// single tx id, hand over its body on request, and wait for the peer's
// next ack before disconnecting. Adapted from the teacher's
// multi-connection TxSubmit dispatcher (internal/txsubmit/ntn.go),
// narrowed from a standing fan-out broadcaster to a single
// submit-and-await-ack call per spec §4.F's synchronous contract.
type NtNBackend struct {
	NetworkMagic uint32
	Hosts        []Host
}

// NewNtNBackend constructs an NtNBackend that dials hosts in order
// until one connects.
func NewNtNBackend(networkMagic uint32, hosts []Host) *NtNBackend {
	return &NtNBackend{NetworkMagic: networkMagic, Hosts: hosts}
}

var _ Backend = (*NtNBackend)(nil)

// Submit implements Backend.
func (b *NtNBackend) Submit(ctx context.Context, txRawBytes []byte) (string, error) {
	hash, txType, err := txHash(txRawBytes)
	if err != nil {
		return "", err
	}
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return "", fmt.Errorf("submit(ntn): decoding tx hash: %w", err)
	}

	if len(b.Hosts) == 0 {
		return "", fmt.Errorf("submit(ntn): no hosts configured")
	}

	acked := make(chan struct{}, 1)
	delivered := false

	var lastErr error
	for _, host := range b.Hosts {
		address := fmt.Sprintf("%s:%d", host.Address, host.Port)
		conn, err := ouroboros.NewConnection(
			ouroboros.WithNetworkMagic(b.NetworkMagic),
			ouroboros.WithNodeToNode(true),
			ouroboros.WithKeepAlive(false),
			ouroboros.WithTxSubmissionConfig(
				txsubmission.NewConfig(
					txsubmission.WithRequestTxIdsFunc(func(
						callbackCtx txsubmission.CallbackContext,
						blocking bool,
						ack uint16,
						req uint16,
					) ([]txsubmission.TxIdAndSize, error) {
						if ack > 0 {
							// Peer has consumed a previously offered tx:
							// our single transaction was accepted.
							select {
							case acked <- struct{}{}:
							default:
							}
						}
						if delivered {
							return nil, nil
						}
						delivered = true
						return []txsubmission.TxIdAndSize{
							{
								TxId: txsubmission.TxId{
									EraId: uint16(txType),
									TxId:  [32]byte(hashBytes),
								},
								Size: uint32(len(txRawBytes)),
							},
						}, nil
					}),
					txsubmission.WithRequestTxsFunc(func(
						callbackCtx txsubmission.CallbackContext,
						txIds []txsubmission.TxId,
					) ([]txsubmission.TxBody, error) {
						return []txsubmission.TxBody{
							{EraId: uint16(txType), TxBody: txRawBytes},
						}, nil
					}),
				),
			),
		)
		if err != nil {
			lastErr = fmt.Errorf("submit(ntn): configuring connection to %s: %w", address, err)
			continue
		}
		if err := conn.Dial("tcp", address); err != nil {
			lastErr = fmt.Errorf("submit(ntn): dialing %s: %w", address, err)
			continue
		}
		conn.TxSubmission().Client.Init()

		select {
		case <-acked:
			_ = conn.Close()
			return hash, nil
		case <-ctx.Done():
			_ = conn.Close()
			return "", ctx.Err()
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("submit(ntn): all hosts failed")
}
