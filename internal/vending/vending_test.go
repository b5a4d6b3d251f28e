package vending_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/cnftvend/internal/assembler"
	"github.com/blinklabs-io/cnftvend/internal/catalog"
	"github.com/blinklabs-io/cnftvend/internal/common"
	"github.com/blinklabs-io/cnftvend/internal/indexer"
	"github.com/blinklabs-io/cnftvend/internal/policy"
	"github.com/blinklabs-io/cnftvend/internal/vending"
	"github.com/blinklabs-io/cnftvend/internal/whitelist"
)

const (
	mintPrice  = 10_000_000
	policyHex  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	wlAssetHex = policyHex + "57686974656c697374" // "Whitelist" hex-encoded
	payAddr    = "addr_test1vqpayment"
	buyerAddr  = "addr_test1vqbuyer"
)

// fakeIndexer serves one fixed transaction and utxo set, no real
// network round trip.
type fakeIndexer struct {
	utxos []common.UTxO
	txs   map[string]common.Transaction
}

func (f *fakeIndexer) UtxosAt(ctx context.Context, address string, exclusions map[string]struct{}) ([]common.UTxO, error) {
	var out []common.UTxO
	for _, u := range f.utxos {
		if _, excluded := exclusions[u.Ref.Key()]; excluded {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeIndexer) Transaction(ctx context.Context, txHash string) (common.Transaction, error) {
	return f.txs[txHash], nil
}

func (f *fakeIndexer) AssetsUnder(ctx context.Context, policyIdHex string) ([]common.AssetId, error) {
	return nil, nil
}

func (f *fakeIndexer) Asset(ctx context.Context, assetIdHex string) (indexer.AssetRecord, error) {
	return indexer.AssetRecord{}, nil
}

func (f *fakeIndexer) AwaitPayment(ctx context.Context, address string, txHash string) (common.UTxO, error) {
	return common.UTxO{}, nil
}

// fakeAssembler records every request it receives and succeeds unless
// fail is set, in which case it returns a Rejected error.
type fakeAssembler struct {
	requests []assembler.Request
	fail     bool
}

func (f *fakeAssembler) BuildAndSubmit(ctx context.Context, req assembler.Request) (string, error) {
	f.requests = append(f.requests, req)
	if f.fail {
		return "", &assembler.Error{Kind: assembler.Rejected, Err: errFake}
	}
	return "fake-tx-hash", nil
}

var errFake = fakeErr("assembler rejected")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func writeCatalogFile(t *testing.T, dir, name string) {
	t.Helper()
	content := []byte(`{"` + name + `":{"name":"` + name + `","image":"ipfs://x"}}`)
	if err := os.WriteFile(filepath.Join(dir, name+".json"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func newTestMachine(t *testing.T, idx *fakeIndexer, asm *fakeAssembler, wl whitelist.Engine, catalogNames ...string) (*vending.Machine, *catalog.Catalog) {
	t.Helper()
	metaDir := t.TempDir()
	lockedDir := t.TempDir()
	for _, n := range catalogNames {
		writeCatalogFile(t, metaDir, n)
	}
	cat := catalog.New(metaDir, lockedDir)

	excl, err := vending.NewExclusionSet(nil)
	if err != nil {
		t.Fatalf("NewExclusionSet: %v", err)
	}

	m := vending.New(vending.Machine{
		PaymentAddress: payAddr,
		ProfitAddress:  "addr_test1vqprofit",
		SingleVendCap:  10,
		Policy: &policy.MintPolicy{
			PolicyId:     policyHex,
			MinimumPrice: mintPrice,
		},
		Whitelist:  wl,
		Catalog:    cat,
		Indexer:    idx,
		Assembler:  asm,
		Exclusions: excl,
	})
	return m, cat
}

func paymentUTxO(lovelace uint64, multiasset map[string]uint64) common.UTxO {
	return common.UTxO{
		Ref:        common.TxRef{Hash: "paytx", Index: 0},
		Address:    payAddr,
		Lovelace:   lovelace,
		Multiasset: multiasset,
	}
}

// S1: whitelist asset only referenced, never spent -> NoCredit, no mint.
func TestVend_S1_ReferencedOnlyIsNoCredit(t *testing.T) {
	u := paymentUTxO(2*mintPrice, nil)
	tx := common.Transaction{
		Hash: "paytx",
		ReferenceInputs: []common.UTxO{
			{Ref: common.TxRef{Hash: "src", Index: 0}, Multiasset: map[string]uint64{wlAssetHex: 1}},
		},
		Outputs: []common.UTxO{u},
	}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}
	wl := whitelist.NewSingleUse(policyHex, t.TempDir(), t.TempDir())

	m, _ := newTestMachine(t, idx, asm, wl, "Item 1", "Item 2")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 0 {
		t.Errorf("expected no mint (NoCredit, no whitelist budget), got %d submissions", len(asm.requests))
	}
}

// S2: whitelist asset sent directly to the payment output -> Disqualified,
// UTxO excluded, no mint, whitelist stays unconsumed.
func TestVend_S2_DirectSendIsDisqualified(t *testing.T) {
	u := paymentUTxO(2*mintPrice, map[string]uint64{wlAssetHex: 1})
	tx := common.Transaction{Hash: "paytx", Outputs: []common.UTxO{u}}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}
	wl := whitelist.NewSingleUse(policyHex, t.TempDir(), t.TempDir())

	m, _ := newTestMachine(t, idx, asm, wl, "Item 1")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 0 {
		t.Errorf("expected no mint on disqualification, got %d", len(asm.requests))
	}
	if !m.Exclusions.Contains(u.Ref.Key()) {
		t.Errorf("expected utxo to be excluded after disqualification")
	}
}

// S3: single-use, credited, buyer requests 2 but budget caps at 1.
func TestVend_S3_SingleUseCapsAtOnePerPass(t *testing.T) {
	u := paymentUTxO(2*mintPrice+2_000_000, nil)
	tx := common.Transaction{
		Hash:   "paytx",
		Inputs: []common.UTxO{{Ref: common.TxRef{Hash: "src", Index: 0}, Address: buyerAddr, Multiasset: map[string]uint64{wlAssetHex: 1}}},
		Outputs: []common.UTxO{u},
	}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}

	wlDir := t.TempDir()
	consumedDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(wlDir, wlAssetHex), nil, 0o644); err != nil {
		t.Fatalf("seed whitelist: %v", err)
	}
	wl := whitelist.NewSingleUse(policyHex, wlDir, consumedDir)

	m, cat := newTestMachine(t, idx, asm, wl, "Item 1", "Item 2", "Item 3")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(asm.requests))
	}
	if got := len(asm.requests[0].Mint); got != 1 {
		t.Errorf("expected 1 minted asset (capped by whitelist budget), got %d", got)
	}
	if asm.requests[0].Outputs[1].Address != buyerAddr {
		t.Errorf("buyer output address = %q, want %q", asm.requests[0].Outputs[1].Address, buyerAddr)
	}

	asset, _ := common.NewAssetIdFromHex(wlAssetHex)
	if wl.IsWhitelisted(asset) {
		t.Errorf("expected whitelist pass to be consumed after a successful mint")
	}

	avail, _ := cat.Available()
	if avail != 2 {
		t.Errorf("catalog available = %d, want 2", avail)
	}
}

// S4: single-use with two passes credited on one transaction, catalog
// holds 3: minted count = 2, both passes consumed, 1 item remains.
func TestVend_S4_TwoPassesMintTwo(t *testing.T) {
	wlAsset2Hex := policyHex + "57686974656c69737432"
	u := paymentUTxO(2*mintPrice+2_000_000, nil)
	tx := common.Transaction{
		Hash: "paytx",
		Inputs: []common.UTxO{
			{
				Ref:        common.TxRef{Hash: "src", Index: 0},
				Address:    buyerAddr,
				Multiasset: map[string]uint64{wlAssetHex: 1, wlAsset2Hex: 1},
			},
		},
		Outputs: []common.UTxO{u},
	}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}

	wlDir := t.TempDir()
	consumedDir := t.TempDir()
	for _, hexId := range []string{wlAssetHex, wlAsset2Hex} {
		if err := os.WriteFile(filepath.Join(wlDir, hexId), nil, 0o644); err != nil {
			t.Fatalf("seed whitelist: %v", err)
		}
	}
	wl := whitelist.NewSingleUse(policyHex, wlDir, consumedDir)

	m, cat := newTestMachine(t, idx, asm, wl, "Item 1", "Item 2", "Item 3")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 1 || len(asm.requests[0].Mint) != 2 {
		t.Fatalf("expected 1 submission minting 2 assets, got %+v", asm.requests)
	}
	for _, hexId := range []string{wlAssetHex, wlAsset2Hex} {
		asset, _ := common.NewAssetIdFromHex(hexId)
		if wl.IsWhitelisted(asset) {
			t.Errorf("expected pass %s consumed after mint", hexId)
		}
	}
	avail, _ := cat.Available()
	if avail != 1 {
		t.Errorf("catalog available = %d, want 1", avail)
	}
}

// S5: unlimited whitelist, buyer pays for 2, pass remains whitelisted.
func TestVend_S5_UnlimitedStaysWhitelisted(t *testing.T) {
	u := paymentUTxO(2*mintPrice+2_000_000, nil)
	tx := common.Transaction{
		Hash:   "paytx",
		Inputs: []common.UTxO{{Ref: common.TxRef{Hash: "src", Index: 0}, Address: buyerAddr, Multiasset: map[string]uint64{wlAssetHex: 1}}},
		Outputs: []common.UTxO{u},
	}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}

	wlDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(wlDir, wlAssetHex), nil, 0o644); err != nil {
		t.Fatalf("seed whitelist: %v", err)
	}
	wl := whitelist.NewUnlimited(policyHex, wlDir)

	m, _ := newTestMachine(t, idx, asm, wl, "Item 1", "Item 2", "Item 3")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 1 || len(asm.requests[0].Mint) != 2 {
		t.Fatalf("expected 1 submission minting 2 assets, got %+v", asm.requests)
	}
	asset, _ := common.NewAssetIdFromHex(wlAssetHex)
	if !wl.IsWhitelisted(asset) {
		t.Errorf("unlimited pass must remain whitelisted after mint")
	}
}

// S6: unlimited, single_vend_cap = 3, buyer pays for 5, catalog holds 5.
func TestVend_S6_CapLimitsMintAndLeavesRemainder(t *testing.T) {
	u := paymentUTxO(5*mintPrice+2_000_000, nil)
	tx := common.Transaction{
		Hash:   "paytx",
		Inputs: []common.UTxO{{Ref: common.TxRef{Hash: "src", Index: 0}, Address: buyerAddr, Multiasset: map[string]uint64{wlAssetHex: 1}}},
		Outputs: []common.UTxO{u},
	}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}

	wlDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(wlDir, wlAssetHex), nil, 0o644); err != nil {
		t.Fatalf("seed whitelist: %v", err)
	}
	wl := whitelist.NewUnlimited(policyHex, wlDir)

	m, cat := newTestMachine(t, idx, asm, wl, "Item 1", "Item 2", "Item 3", "Item 4", "Item 5")
	m.SingleVendCap = 3
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 1 || len(asm.requests[0].Mint) != 3 {
		t.Fatalf("expected 1 submission minting 3 assets (cap), got %+v", asm.requests)
	}
	avail, _ := cat.Available()
	if avail != 2 {
		t.Errorf("catalog available = %d, want 2", avail)
	}
}

// A submission failure excludes the UTxO and leaves the catalog and
// whitelist untouched (spec §4.E commit-ordering/failure semantics).
func TestVend_SubmissionFailureExcludesWithoutMutatingState(t *testing.T) {
	u := paymentUTxO(2*mintPrice, nil)
	tx := common.Transaction{Hash: "paytx", Outputs: []common.UTxO{u}}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{fail: true}
	wl := whitelist.NoWhitelist{}

	m, cat := newTestMachine(t, idx, asm, wl, "Item 1", "Item 2")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if !m.Exclusions.Contains(u.Ref.Key()) {
		t.Errorf("expected utxo excluded after submission failure")
	}
	avail, _ := cat.Available()
	if avail != 2 {
		t.Errorf("catalog available = %d, want 2 (nothing committed on failure)", avail)
	}
}

// A UTxO below minimum price is excluded outright (spec §4.E step d).
func TestVend_BelowMinimumPriceIsExcluded(t *testing.T) {
	u := paymentUTxO(mintPrice-1, nil)
	tx := common.Transaction{Hash: "paytx", Outputs: []common.UTxO{u}}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}
	wl := whitelist.NoWhitelist{}

	m, _ := newTestMachine(t, idx, asm, wl, "Item 1")
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 0 {
		t.Errorf("expected no submission below minimum price")
	}
	if !m.Exclusions.Contains(u.Ref.Key()) {
		t.Errorf("expected utxo excluded when below minimum price")
	}
}

// A catalog with zero items leaves the utxo unprocessed and the pass
// ends the whole vend loop without consuming anything.
func TestVend_EmptyCatalogEndsPassWithoutExclusion(t *testing.T) {
	u := paymentUTxO(2*mintPrice, nil)
	tx := common.Transaction{Hash: "paytx", Outputs: []common.UTxO{u}}
	idx := &fakeIndexer{utxos: []common.UTxO{u}, txs: map[string]common.Transaction{"paytx": tx}}
	asm := &fakeAssembler{}
	wl := whitelist.NoWhitelist{}

	m, _ := newTestMachine(t, idx, asm, wl)
	if err := m.Vend(context.Background()); err != nil {
		t.Fatalf("Vend: %v", err)
	}
	if len(asm.requests) != 0 {
		t.Errorf("expected no submission against an empty catalog")
	}
	if m.Exclusions.Contains(u.Ref.Key()) {
		t.Errorf("expected utxo not excluded when the catalog is merely exhausted")
	}
}
