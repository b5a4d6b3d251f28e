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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// HTTPBackend submits a transaction to a Blockfrost-compatible
// "/tx/submit" endpoint, adapted from the teacher's fire-and-forget
// submitTxApi into a synchronous call that returns the tx hash.
type HTTPBackend struct {
	Url        string
	HttpClient *http.Client
}

// NewHTTPBackend constructs an HTTPBackend posting to url.
func NewHTTPBackend(url string) *HTTPBackend {
	return &HTTPBackend{Url: url, HttpClient: http.DefaultClient}
}

var _ Backend = (*HTTPBackend)(nil)

// Submit implements Backend.
func (b *HTTPBackend) Submit(ctx context.Context, txRawBytes []byte) (string, error) {
	hash, _, err := txHash(txRawBytes)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.Url, bytes.NewReader(txRawBytes))
	if err != nil {
		return "", fmt.Errorf("submit(http): creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/cbor")

	resp, err := b.HttpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit(http): %s: %w", b.Url, err)
	}
	defer resp.Body.Close()
	if resp == nil {
		return "", errors.New("submit(http): nil response")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("submit(http): reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit(http): unexpected response: %s: %d: %s", b.Url, resp.StatusCode, body)
	}
	return hash, nil
}
