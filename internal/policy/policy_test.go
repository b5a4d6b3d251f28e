package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/blinklabs-io/cnftvend/internal/policy"
)

func validPolicy(t *testing.T) policy.MintPolicy {
	t.Helper()
	dir := t.TempDir()
	metadataDir := filepath.Join(dir, "metadata")
	scriptFile := filepath.Join(dir, "policy.script")
	signingKey := filepath.Join(dir, "policy.skey")

	if err := os.MkdirAll(metadataDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(scriptFile, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(signingKey, []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return policy.MintPolicy{
		PolicyId:         "ab0123456789ab0123456789ab0123456789ab0123456789ab012345",
		MinimumPrice:     5_000_000,
		Donation:         0,
		MetadataDir:      metadataDir,
		ScriptFile:       scriptFile,
		SigningKeyPath:   signingKey,
		WhitelistVariant: policy.WhitelistNone,
	}
}

func TestValidateAcceptsWellFormedPolicy(t *testing.T) {
	p := validPolicy(t)
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsLowMinimumPrice(t *testing.T) {
	p := validPolicy(t)
	p.MinimumPrice = 1_000_000
	if err := p.Validate(); err == nil {
		t.Errorf("expected ConfigurationError for minimum_price below floor")
	}
}

func TestValidateRejectsSmallNonZeroDonation(t *testing.T) {
	p := validPolicy(t)
	p.Donation = 500_000
	if err := p.Validate(); err == nil {
		t.Errorf("expected ConfigurationError for donation between 0 and 1,000,000")
	}
}

func TestValidateAcceptsZeroDonation(t *testing.T) {
	p := validPolicy(t)
	p.Donation = 0
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil for zero donation", err)
	}
}

func TestValidateRejectsMissingMetadataDir(t *testing.T) {
	p := validPolicy(t)
	p.MetadataDir = filepath.Join(t.TempDir(), "does-not-exist")
	if err := p.Validate(); err == nil {
		t.Errorf("expected ConfigurationError for missing metadata_directory")
	}
}

func TestValidateRejectsMissingScriptFile(t *testing.T) {
	p := validPolicy(t)
	p.ScriptFile = filepath.Join(t.TempDir(), "missing.script")
	if err := p.Validate(); err == nil {
		t.Errorf("expected ConfigurationError for missing script_file")
	}
}

func TestValidateRejectsMissingSigningKey(t *testing.T) {
	p := validPolicy(t)
	p.SigningKeyPath = filepath.Join(t.TempDir(), "missing.skey")
	if err := p.Validate(); err == nil {
		t.Errorf("expected ConfigurationError for missing signing_key")
	}
}

func TestValidateRequiresWhitelistDirsForSingleUse(t *testing.T) {
	p := validPolicy(t)
	p.WhitelistVariant = policy.WhitelistSingleUse
	p.WhitelistDir = filepath.Join(t.TempDir(), "missing-whitelist")
	p.ConsumedDir = filepath.Join(t.TempDir(), "missing-consumed")
	if err := p.Validate(); err == nil {
		t.Errorf("expected ConfigurationError for missing whitelist_dir/consumed_dir")
	}
}

func TestValidateAcceptsSingleUseWithExistingDirs(t *testing.T) {
	p := validPolicy(t)
	p.WhitelistVariant = policy.WhitelistSingleUse
	p.WhitelistDir = t.TempDir()
	p.ConsumedDir = t.TempDir()
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestHashScriptHexIsDeterministic(t *testing.T) {
	scriptBytes := []byte(`{"type":"sig","keyHash":"deadbeef"}`)
	first, err := policy.HashScriptHex(policy.NativeScriptTag, scriptBytes)
	if err != nil {
		t.Fatalf("HashScriptHex: %v", err)
	}
	second, err := policy.HashScriptHex(policy.NativeScriptTag, scriptBytes)
	if err != nil {
		t.Fatalf("HashScriptHex: %v", err)
	}
	if first != second {
		t.Errorf("HashScriptHex not deterministic: %q vs %q", first, second)
	}
	if len(first) != 56 {
		t.Errorf("HashScriptHex length = %d, want 56 (28 bytes hex)", len(first))
	}
}
