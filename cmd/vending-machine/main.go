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

// vending-machine is the long-running daemon: it loads the Mint Policy
// and whitelist engine from config, and repeatedly drives
// internal/vending.Machine.Vend on a fixed poll interval until signaled
// to stop. Adapted from cmd/shai/main.go's flag/config/logging
// bootstrap, replacing shai's "TODO: do something useful" with the
// actual vending loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/blinklabs-io/cnftvend/internal/assembler"
	"github.com/blinklabs-io/cnftvend/internal/catalog"
	"github.com/blinklabs-io/cnftvend/internal/config"
	"github.com/blinklabs-io/cnftvend/internal/indexer"
	"github.com/blinklabs-io/cnftvend/internal/logging"
	"github.com/blinklabs-io/cnftvend/internal/policy"
	"github.com/blinklabs-io/cnftvend/internal/storage"
	"github.com/blinklabs-io/cnftvend/internal/vending"
	"github.com/blinklabs-io/cnftvend/internal/whitelist"
)

const programName = "vending-machine"

var cmdlineFlags struct {
	configFile string
}

func main() {
	flag.StringVar(&cmdlineFlags.configFile, "config", "", "path to config file to load")
	flag.Parse()

	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}

	logging.Configure()
	logger := logging.GetLogger()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("failed to set GOMAXPROCS", "error", err)
	}

	if cfg.Debug.ListenPort > 0 {
		logger.Info("starting debug listener", "address", cfg.Debug.ListenAddress, "port", cfg.Debug.ListenPort)
		go func() {
			addr := fmt.Sprintf("%s:%d", cfg.Debug.ListenAddress, cfg.Debug.ListenPort)
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Error("debug listener failed", "error", err)
			}
		}()
	}

	mintPolicy := policy.MintPolicy{
		PolicyId:         cfg.MintPolicy.PolicyId,
		MinimumPrice:     cfg.MintPolicy.MinimumPrice,
		Donation:         cfg.MintPolicy.Donation,
		MetadataDir:      cfg.MintPolicy.MetadataDir,
		ScriptFile:       cfg.MintPolicy.ScriptFile,
		SigningKeyPath:   cfg.MintPolicy.SigningKeyPath,
		DonationAddress:  cfg.MintPolicy.DonationAddress,
		WhitelistVariant: policy.WhitelistVariant(cfg.Whitelist.Variant),
		WhitelistDir:     cfg.Whitelist.WhitelistDir,
		ConsumedDir:      cfg.Whitelist.ConsumedDir,
	}
	if err := mintPolicy.Validate(); err != nil {
		logger.Error("mint policy failed validation", "error", err)
		os.Exit(1)
	}

	store := storage.GetStorage()
	if err := store.Load(); err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close() //nolint:errcheck

	exclusions, err := vending.NewExclusionSet(store)
	if err != nil {
		logger.Error("failed to load exclusion set", "error", err)
		os.Exit(1)
	}

	// The whitelist pass is minted under its own policy, separate from
	// the policy being vended.
	var engine whitelist.Engine
	switch mintPolicy.WhitelistVariant {
	case policy.WhitelistSingleUse:
		engine = whitelist.NewSingleUse(cfg.Whitelist.PolicyId, mintPolicy.WhitelistDir, mintPolicy.ConsumedDir)
	case policy.WhitelistUnlimited:
		engine = whitelist.NewUnlimited(cfg.Whitelist.PolicyId, mintPolicy.WhitelistDir)
	default:
		engine = whitelist.NoWhitelist{}
	}

	lockedDir := cfg.MintPolicy.LockedDir
	if lockedDir == "" {
		lockedDir = mintPolicy.MetadataDir + ".locked"
	}
	if err := os.MkdirAll(lockedDir, 0o755); err != nil {
		logger.Error("failed to create locked directory", "dir", lockedDir, "error", err)
		os.Exit(1)
	}

	baseUrl := cfg.Indexer.BaseUrl
	if baseUrl == "" {
		baseUrl = indexer.BaseUrlForNetwork(cfg.Network)
	}
	idx := indexer.NewClient(
		baseUrl,
		cfg.Indexer.ProjectToken,
		&http.Client{Timeout: time.Duration(cfg.Indexer.RequestTimeout) * time.Second},
	).WithCache(store)

	machine := vending.New(vending.Machine{
		PaymentAddress: cfg.Machine.PaymentAddress,
		ProfitAddress:  cfg.Machine.ProfitAddress,
		VendRandomly:   cfg.Machine.VendRandomly,
		SingleVendCap:  cfg.Machine.SingleVendCap,
		Mainnet:        cfg.Machine.Mainnet,
		NetworkName:    cfg.Network,
		Policy:         &mintPolicy,
		Whitelist:      engine,
		Catalog:        catalog.New(mintPolicy.MetadataDir, lockedDir),
		Indexer:        idx,
		Assembler:      assembler.NewSubprocessClient(cfg.Assembler.BinaryPath, cmdlineFlags.configFile),
		Exclusions:     exclusions,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollInterval := time.Duration(cfg.Machine.PollInterval) * time.Second
	logger.Info("vending machine started", "pollInterval", pollInterval.String())

	for {
		if err := machine.Vend(ctx); err != nil && ctx.Err() == nil {
			logger.Error("vend pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			logger.Info("vending machine stopping")
			return
		case <-time.After(pollInterval):
		}
	}
}
