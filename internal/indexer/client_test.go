package indexer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blinklabs-io/cnftvend/internal/indexer"
)

func TestUtxosAtParsesAmountsAndFiltersExclusions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/addresses/addr1xyz/utxos" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("project_id") != "test-token" {
			t.Errorf("missing project_id header")
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"tx_hash":      "aaaa",
				"output_index": 0,
				"address":      "addr1xyz",
				"amount": []map[string]string{
					{"unit": "lovelace", "quantity": "10000000"},
				},
			},
			{
				"tx_hash":      "bbbb",
				"output_index": 1,
				"address":      "addr1xyz",
				"amount": []map[string]string{
					{"unit": "lovelace", "quantity": "5000000"},
				},
			},
		})
	}))
	defer server.Close()

	client := indexer.NewClient(server.URL, "test-token", nil)
	utxos, err := client.UtxosAt(context.Background(), "addr1xyz", map[string]struct{}{"bbbb.1": {}})
	if err != nil {
		t.Fatalf("UtxosAt: %v", err)
	}
	if len(utxos) != 1 {
		t.Fatalf("UtxosAt returned %d utxos, want 1 (excluded one should be filtered)", len(utxos))
	}
	if utxos[0].Lovelace != 10_000_000 {
		t.Errorf("Lovelace = %d, want 10000000", utxos[0].Lovelace)
	}
}

func TestTransactionSeparatesReferenceInputs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hash": "deadbeef",
			"inputs": []map[string]any{
				{
					"tx_hash":      "aaaa",
					"output_index": 0,
					"address":      "addr1spend",
					"amount":       []map[string]string{{"unit": "lovelace", "quantity": "2000000"}},
					"reference":    false,
				},
				{
					"tx_hash":      "cccc",
					"output_index": 2,
					"address":      "addr1ref",
					"amount":       []map[string]string{{"unit": "lovelace", "quantity": "0"}},
					"reference":    true,
				},
			},
			"outputs": []map[string]any{
				{
					"tx_hash":      "deadbeef",
					"output_index": 0,
					"address":      "addr1payment",
					"amount":       []map[string]string{{"unit": "lovelace", "quantity": "15000000"}},
				},
			},
		})
	}))
	defer server.Close()

	client := indexer.NewClient(server.URL, "test-token", nil)
	tx, err := client.Transaction(context.Background(), "deadbeef")
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if len(tx.Inputs) != 1 || tx.Inputs[0].Ref.Hash != "aaaa" {
		t.Errorf("Inputs = %v, want one spending input from aaaa", tx.Inputs)
	}
	if len(tx.ReferenceInputs) != 1 || tx.ReferenceInputs[0].Ref.Hash != "cccc" {
		t.Errorf("ReferenceInputs = %v, want one reference input from cccc", tx.ReferenceInputs)
	}
	if len(tx.Outputs) != 1 {
		t.Errorf("Outputs = %v, want 1", tx.Outputs)
	}
}

func TestGetJSONPermanentErrorOnNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not Found"}`))
	}))
	defer server.Close()

	client := indexer.NewClient(server.URL, "test-token", nil)
	_, err := client.AssetsUnder(context.Background(), "ab0123456789ab0123456789ab0123456789ab0123456789ab012345")
	if err == nil {
		t.Fatalf("expected error for 404 response")
	}
	var idxErr *indexer.Error
	if !asIndexerError(err, &idxErr) {
		t.Fatalf("expected *indexer.Error, got %T: %v", err, err)
	}
	if idxErr.Kind != indexer.Permanent {
		t.Errorf("Kind = %v, want Permanent", idxErr.Kind)
	}
}

func asIndexerError(err error, target **indexer.Error) bool {
	if ie, ok := err.(*indexer.Error); ok {
		*target = ie
		return true
	}
	return false
}

// fakeTransactionCache is an in-memory stand-in for internal/storage.Storage.
type fakeTransactionCache struct {
	entries map[string][]byte
}

func (f *fakeTransactionCache) GetCachedTransaction(txHash string) ([]byte, bool, error) {
	body, ok := f.entries[txHash]
	return body, ok, nil
}

func (f *fakeTransactionCache) CacheTransaction(txHash string, body []byte) error {
	if f.entries == nil {
		f.entries = map[string][]byte{}
	}
	f.entries[txHash] = body
	return nil
}

func TestTransactionServesFromCacheOnSecondCall(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hash":    "deadbeef",
			"inputs":  []map[string]any{},
			"outputs": []map[string]any{},
		})
	}))
	defer server.Close()

	cache := &fakeTransactionCache{}
	client := indexer.NewClient(server.URL, "test-token", nil).WithCache(cache)

	if _, err := client.Transaction(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("Transaction (first call): %v", err)
	}
	if _, err := client.Transaction(context.Background(), "deadbeef"); err != nil {
		t.Fatalf("Transaction (second call): %v", err)
	}
	if requests != 1 {
		t.Errorf("server received %d requests, want 1 (second call should be served from cache)", requests)
	}
}
