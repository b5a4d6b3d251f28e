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

package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/google/uuid"
)

// Assembler is the contract the vending loop drives (spec §4.F):
// produce and submit the mint+pay+refund transaction, returning the tx
// hash of a synchronously-accepted (not yet final) submission.
type Assembler interface {
	BuildAndSubmit(ctx context.Context, req Request) (txHash string, err error)
}

// SubprocessClient invokes cmd/tx-assembler as a child process per
// call, writing the Request as one line of JSON on stdin and reading
// one line of JSON Response from stdout. Grounded on flowmass's
// exec.CommandContext subprocess pattern (engine.go's
// BuildTransaction/SignTransaction/SubmitTransaction), collapsed here
// into a single subprocess round trip.
type SubprocessClient struct {
	BinaryPath string
	ConfigPath string
}

// NewSubprocessClient constructs a client that execs binaryPath,
// passing --config configPath if non-empty.
func NewSubprocessClient(binaryPath, configPath string) *SubprocessClient {
	return &SubprocessClient{BinaryPath: binaryPath, ConfigPath: configPath}
}

var _ Assembler = (*SubprocessClient)(nil)

// BuildAndSubmit implements Assembler.
func (c *SubprocessClient) BuildAndSubmit(ctx context.Context, req Request) (string, error) {
	if req.RequestId == "" {
		req.RequestId = uuid.NewString()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("assembler: marshaling request: %w", err)
	}

	args := []string{"--mint-request"}
	if c.ConfigPath != "" {
		args = append(args, "--config", c.ConfigPath)
	}
	cmd := exec.CommandContext(ctx, c.BinaryPath, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return "", &Error{Kind: Timeout, Err: ctx.Err()}
	}

	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		if runErr != nil {
			return "", &Error{Kind: Rejected, Err: fmt.Errorf("%w: %s", runErr, stderr.String())}
		}
		return "", &Error{Kind: Rejected, Err: fmt.Errorf("assembler: unparseable response: %w: %s", err, stdout.String())}
	}
	if resp.RequestId != "" && resp.RequestId != req.RequestId {
		return "", &Error{Kind: Rejected, Err: fmt.Errorf("assembler: response requestId %q does not match request %q", resp.RequestId, req.RequestId)}
	}
	if resp.Timeout {
		return "", &Error{Kind: Timeout, Err: fmt.Errorf("assembler: %s", resp.Error)}
	}
	if resp.Error != "" {
		return "", &Error{Kind: Rejected, Err: fmt.Errorf("assembler: %s", resp.Error)}
	}
	if resp.TxHash == "" {
		return "", &Error{Kind: Rejected, Err: fmt.Errorf("assembler: empty tx hash in response")}
	}
	return resp.TxHash, nil
}
