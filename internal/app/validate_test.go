package app

import (
	"testing"

	"meshnode/pkg/config"
)

func effWith(addr, db, gateway string) config.EffectiveConfigResult {
	eff := config.EffectiveConfigResult{Addr: addr, DBPath: db}
	eff.Config.Resolver.GatewayURL = gateway
	return eff
}

func TestValidateConfig(t *testing.T) {
	if err := validateConfig(effWith(":4024", "./data", "http://gw:8080")); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if err := validateConfig(effWith(":4024", "", "")); err == nil {
		t.Fatalf("empty db path must be rejected")
	}
	if err := validateConfig(effWith("no-port", "./data", "")); err == nil {
		t.Fatalf("malformed address must be rejected")
	}
	if err := validateConfig(effWith(":4024", "./data", "gw:8080")); err == nil {
		t.Fatalf("non-http gateway url must be rejected")
	}
}

func TestBuildRegistryDefaults(t *testing.T) {
	eff := config.EffectiveConfigResult{}
	eff.Config.Chains.Ethereum.Enabled = true
	eff.Config.Chains.Solana.Enabled = true

	reg := buildRegistry(eff)
	got := reg.Chains()
	if len(got) != 2 || got[0] != "ETH" || got[1] != "SOL" {
		t.Fatalf("default chain names wrong: %v", got)
	}
}

func TestBuildRegistryCustomNames(t *testing.T) {
	eff := config.EffectiveConfigResult{}
	eff.Config.Chains.Solana.Enabled = true
	eff.Config.Chains.Solana.Name = "SOLANA"

	reg := buildRegistry(eff)
	if _, err := reg.Lookup("SOLANA"); err != nil {
		t.Fatalf("custom chain name must register: %v", err)
	}
}
