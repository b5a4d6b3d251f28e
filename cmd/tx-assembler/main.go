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

// tx-assembler is the Transaction Assembler subprocess (spec §4.F): it
// reads one assembler.Request as a line of JSON on stdin, builds and
// signs the mint+pay+refund transaction with Apollo, submits it with
// internal/submit, and writes one assembler.Response line to stdout.
// It is invoked once per vend attempt by internal/assembler.SubprocessClient
// and exits after the single request completes.
//
// Grounded on shai's internal/geniusyield/tx.go and
// internal/fluidtokens/tx.go (the Apollo AddInputAddress/AddLoadedUTxOs/
// PayToAddress/CompleteExact/SignWithSkey fluent chain, and the bursa
// key-stripping dance) and internal/txsubmit (submitting the finished
// transaction), rebuilt around cnftvend's mint policy instead of shai's
// order-matching contracts.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Salvionied/apollo"
	serAddress "github.com/Salvionied/apollo/serialization/Address"
	"github.com/Salvionied/apollo/serialization/Asset"
	"github.com/Salvionied/apollo/serialization/AssetName"
	"github.com/Salvionied/apollo/serialization/Metadata"
	"github.com/Salvionied/apollo/serialization/MultiAsset"
	"github.com/Salvionied/apollo/serialization/NativeScript"
	"github.com/Salvionied/apollo/serialization/Policy"
	"github.com/Salvionied/apollo/serialization/TransactionInput"
	"github.com/Salvionied/apollo/serialization/TransactionOutput"
	"github.com/Salvionied/apollo/serialization/UTxO"
	"github.com/Salvionied/apollo/serialization/Value"
	"go.uber.org/zap"

	"github.com/blinklabs-io/cnftvend/internal/assembler"
	"github.com/blinklabs-io/cnftvend/internal/common"
	"github.com/blinklabs-io/cnftvend/internal/config"
	"github.com/blinklabs-io/cnftvend/internal/indexer"
	"github.com/blinklabs-io/cnftvend/internal/submit"
	"github.com/blinklabs-io/cnftvend/internal/wallet"
)

const (
	// nftMetadataLabel is the conventional aux-data label for NFT
	// metadata (CIP-25).
	nftMetadataLabel = 721

	// mintTxFee is the fixed transaction fee in lovelace, deducted from
	// the profit output. The vending loop hands us outputs that consume
	// the payment input exactly, so the fee has to come out of the
	// profit share for the transaction to balance.
	mintTxFee = 500_000
)

var cmdlineFlags struct {
	mintRequest bool
	configFile  string
}

func main() {
	flag.BoolVar(&cmdlineFlags.mintRequest, "mint-request", false, "read a single assembler.Request from stdin and process it")
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to initialize logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if !cmdlineFlags.mintRequest {
		fmt.Fprintln(os.Stderr, "ERROR: -mint-request is required")
		os.Exit(1)
	}

	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		logger.Fatal("loading config", zap.Error(err))
	}

	var req assembler.Request
	if err := json.NewDecoder(bufio.NewReader(os.Stdin)).Decode(&req); err != nil {
		writeResponse(assembler.Response{Error: fmt.Sprintf("decoding request: %s", err)})
		os.Exit(1)
	}

	resp := process(logger, cfg, req)
	writeResponse(resp)
	if resp.Error != "" || resp.Timeout {
		os.Exit(1)
	}
}

func writeResponse(resp assembler.Response) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(resp)
}

func process(logger *zap.Logger, cfg *config.Config, req assembler.Request) assembler.Response {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Indexer.RequestTimeout)*time.Second*4)
	defer cancel()

	logger = logger.With(zap.String("requestId", req.RequestId))
	logger.Info("assembling transaction", zap.Int("mint", len(req.Mint)), zap.Int("inputs", len(req.Inputs)))

	w, err := wallet.Load(cfg.Wallet.Mnemonic, cfg.Machine.Mainnet)
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("loading wallet: %s", err)}
	}

	baseUrl := cfg.Indexer.BaseUrl
	if baseUrl == "" {
		baseUrl = indexer.BaseUrlForNetwork(req.Network)
	}
	idx := indexer.NewClient(baseUrl, cfg.Indexer.ProjectToken, nil)

	loadedUtxos := make([]UTxO.UTxO, 0, len(req.Inputs))
	for _, ref := range req.Inputs {
		u, err := resolveInput(ctx, idx, ref)
		if err != nil {
			return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("resolving input %s: %s", ref.String(), err)}
		}
		loadedUtxos = append(loadedUtxos, u)
	}

	changeAddress, err := serAddress.DecodeAddress(w.PaymentAddress)
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("decoding wallet address: %s", err)}
	}

	// The vending loop's outputs consume the payment input exactly, so
	// the network fee comes out of the profit output (always first).
	if len(req.Outputs) == 0 {
		return assembler.Response{RequestId: req.RequestId, Error: "no outputs in request"}
	}
	if req.Outputs[0].Lovelace <= mintTxFee {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("profit output %d cannot cover the %d fee", req.Outputs[0].Lovelace, mintTxFee)}
	}
	req.Outputs[0].Lovelace -= mintTxFee

	cc := apollo.NewEmptyBackend()
	txBuilder := apollo.New(&cc).
		AddInputAddress(changeAddress).
		AddLoadedUTxOs(loadedUtxos...)

	for _, out := range req.Outputs {
		addr, err := serAddress.DecodeAddress(out.Address)
		if err != nil {
			return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("decoding output address %s: %s", out.Address, err)}
		}
		units := make([]apollo.Unit, 0, len(out.Multiasset))
		for assetHex, qty := range out.Multiasset {
			assetId, err := common.NewAssetIdFromHex(assetHex)
			if err != nil {
				continue
			}
			units = append(units, apollo.NewUnit(
				assetId.PolicyIdHex(),
				string(assetId.Name),
				int(qty),
			))
		}
		txBuilder = txBuilder.PayToAddress(addr, int(out.Lovelace), units...)
	}

	if len(req.Mint) > 0 {
		script, err := loadMintScript(req.ScriptFiles)
		if err != nil {
			return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("loading mint script: %s", err)}
		}
		perAsset := map[string]any{}
		for _, m := range req.Mint {
			var assetMetadata any
			if len(m.Metadata) > 0 {
				if err := json.Unmarshal(m.Metadata, &assetMetadata); err != nil {
					return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("parsing metadata for %s: %s", m.AssetName, err)}
				}
			}
			perAsset[m.AssetName] = assetMetadata
			txBuilder = txBuilder.MintAssets(
				apollo.NewUnit(m.PolicyId, m.AssetName, int(m.Quantity)),
			)
		}
		txBuilder = txBuilder.
			AttachNativeScript(script).
			SetShelleyMetadata(Metadata.ShelleyMaryMetadata{
				Metadata: Metadata.Metadata{
					nftMetadataLabel: map[string]any{
						req.Mint[0].PolicyId: perAsset,
					},
				},
			})
	}

	tx, err := txBuilder.
		DisableExecutionUnitsEstimation().
		CompleteExact(mintTxFee)
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("completing transaction: %s", err)}
	}

	walletVkey, walletSkey, err := w.VerificationAndSigningKeys()
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("deriving wallet keys: %s", err)}
	}
	tx, err = tx.SignWithSkey(walletVkey, walletSkey)
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("signing transaction with wallet key: %s", err)}
	}

	for _, path := range req.SigningKeys {
		policyVkey, policySkey, err := wallet.LoadSigningKeyFile(path)
		if err != nil {
			return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("loading policy signing key %s: %s", path, err)}
		}
		tx, err = tx.SignWithSkey(policyVkey, policySkey)
		if err != nil {
			return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("signing transaction with policy key: %s", err)}
		}
	}

	txBytes, err := tx.GetTx().Bytes()
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("serializing transaction: %s", err)}
	}

	backend, err := dialSubmitBackend(cfg)
	if err != nil {
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("dialing submit backend: %s", err)}
	}

	txHash, err := backend.Submit(ctx, txBytes)
	if err != nil {
		if ctx.Err() != nil {
			return assembler.Response{RequestId: req.RequestId, Timeout: true, Error: err.Error()}
		}
		return assembler.Response{RequestId: req.RequestId, Error: fmt.Sprintf("submitting transaction: %s", err)}
	}

	logger.Info("transaction submitted", zap.String("txHash", txHash))
	return assembler.Response{RequestId: req.RequestId, TxHash: txHash}
}

// resolveInput fetches the full value of a spending input by re-fetching
// its originating transaction, since assembler.Request only carries the
// bare TxRef (spec §4.F treats the assembler's internal mechanics as
// opaque; this subprocess is free to make its own indexer calls).
func resolveInput(ctx context.Context, idx indexer.Indexer, ref common.TxRef) (UTxO.UTxO, error) {
	tx, err := idx.Transaction(ctx, ref.Hash)
	if err != nil {
		return UTxO.UTxO{}, err
	}
	for _, out := range tx.Outputs {
		if out.Ref == ref {
			return toApolloUtxo(out)
		}
	}
	return UTxO.UTxO{}, fmt.Errorf("output index %d not found in transaction %s", ref.Index, ref.Hash)
}

func toApolloUtxo(u common.UTxO) (UTxO.UTxO, error) {
	addr, err := serAddress.DecodeAddress(u.Address)
	if err != nil {
		return UTxO.UTxO{}, err
	}
	txId, err := hex.DecodeString(u.Ref.Hash)
	if err != nil {
		return UTxO.UTxO{}, fmt.Errorf("decoding tx hash %s: %w", u.Ref.Hash, err)
	}

	var value Value.Value
	if len(u.Multiasset) > 0 {
		ma := MultiAsset.MultiAsset[int64]{}
		for assetHex, qty := range u.Multiasset {
			assetId, err := common.NewAssetIdFromHex(assetHex)
			if err != nil {
				continue
			}
			pid := Policy.PolicyId{Value: assetId.PolicyIdHex()}
			if _, ok := ma[pid]; !ok {
				ma[pid] = Asset.Asset[int64]{}
			}
			ma[pid][AssetName.NewAssetNameFromString(string(assetId.Name))] = int64(qty)
		}
		value = Value.SimpleValue(int64(u.Lovelace), ma)
	} else {
		value = Value.PureLovelaceValue(int64(u.Lovelace))
	}

	return UTxO.UTxO{
		Input: TransactionInput.TransactionInput{
			TransactionId: txId,
			Index:         int(u.Ref.Index),
		},
		Output: TransactionOutput.SimpleTransactionOutput(addr, value),
	}, nil
}

// cliNativeScript is the cardano-cli JSON layout for timelock scripts,
// the format cmd/mk-policy-script writes inside its TextEnvelope.
type cliNativeScript struct {
	Type     string            `json:"type"`
	Scripts  []cliNativeScript `json:"scripts,omitempty"`
	KeyHash  string            `json:"keyHash,omitempty"`
	Slot     int64             `json:"slot,omitempty"`
	Required int               `json:"required,omitempty"`
}

// toApollo converts the cardano-cli JSON script form into Apollo's
// NativeScript. Tag values follow the ledger CDDL: 0 pubkey, 1 all,
// 2 any, 3 n-of-k, 4 invalid-before, 5 invalid-hereafter. cardano-cli's
// "before slot N" means the script is invalid from slot N onward, which
// is the ledger's invalid-hereafter.
func (s cliNativeScript) toApollo() (NativeScript.NativeScript, error) {
	switch s.Type {
	case "sig":
		keyHash, err := hex.DecodeString(s.KeyHash)
		if err != nil {
			return NativeScript.NativeScript{}, fmt.Errorf("decoding keyHash %q: %w", s.KeyHash, err)
		}
		return NativeScript.NativeScript{Tag: 0, KeyHash: keyHash}, nil
	case "all", "any", "atLeast":
		subs := make([]NativeScript.NativeScript, 0, len(s.Scripts))
		for _, sub := range s.Scripts {
			converted, err := sub.toApollo()
			if err != nil {
				return NativeScript.NativeScript{}, err
			}
			subs = append(subs, converted)
		}
		switch s.Type {
		case "all":
			return NativeScript.NativeScript{Tag: 1, NativeScripts: subs}, nil
		case "any":
			return NativeScript.NativeScript{Tag: 2, NativeScripts: subs}, nil
		default:
			return NativeScript.NativeScript{Tag: 3, NativeScripts: subs, NoK: s.Required}, nil
		}
	case "after":
		return NativeScript.NativeScript{Tag: 4, Before: s.Slot}, nil
	case "before":
		return NativeScript.NativeScript{Tag: 5, After: s.Slot}, nil
	default:
		return NativeScript.NativeScript{}, fmt.Errorf("unsupported native script type %q", s.Type)
	}
}

// loadMintScript reads the first configured script file's TextEnvelope
// and converts it into an Apollo native script usable as a mint witness.
func loadMintScript(scriptFiles []string) (NativeScript.NativeScript, error) {
	if len(scriptFiles) == 0 {
		return NativeScript.NativeScript{}, fmt.Errorf("no script files configured")
	}
	buf, err := os.ReadFile(scriptFiles[0])
	if err != nil {
		return NativeScript.NativeScript{}, err
	}
	var env struct {
		Script cliNativeScript `json:"script"`
	}
	if err := json.Unmarshal(buf, &env); err != nil {
		return NativeScript.NativeScript{}, fmt.Errorf("decoding native script envelope: %w", err)
	}
	return env.Script.toApollo()
}

func dialSubmitBackend(cfg *config.Config) (submit.Backend, error) {
	hosts := make([]submit.Host, 0, len(cfg.Submit.Hosts))
	for _, h := range cfg.Submit.Hosts {
		hosts = append(hosts, submit.Host{Address: h.Address, Port: h.Port})
	}
	return submit.Dial(submit.Config{
		Url:          cfg.Submit.Url,
		Hosts:        hosts,
		NetworkMagic: cfg.NetworkMagic,
	})
}
