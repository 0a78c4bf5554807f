package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected defaults to load, got %v", err)
	}

	if cfg.ServiceName != "payd" {
		t.Errorf("Expected service name payd, got %s", cfg.ServiceName)
	}
	if cfg.PoolName != "pool" {
		t.Errorf("Expected pool name pool, got %s", cfg.PoolName)
	}
	if !cfg.Primary.Enabled {
		t.Error("Expected the primary chain enabled by default")
	}
	if cfg.Aux.Enabled {
		t.Error("Expected the aux chain disabled by default")
	}
	if cfg.Primary.CheckInterval != 70*time.Second {
		t.Errorf("Expected default check interval 70s, got %v", cfg.Primary.CheckInterval)
	}
	if cfg.Primary.PaymentInterval != 2*time.Hour {
		t.Errorf("Expected default payment interval 2h, got %v", cfg.Primary.PaymentInterval)
	}
	if cfg.Primary.Magnitude != 0 {
		t.Errorf("Expected magnitude unset for discovery, got %d", cfg.Primary.Magnitude)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("POOL_NAME", "mainpool")
	t.Setenv("PRIMARY_CHAIN", "bitcoin")
	t.Setenv("PRIMARY_MIN_PAYMENT", "0.01")
	t.Setenv("PRIMARY_MAGNITUDE", "100000000")
	t.Setenv("SOLO_PORTS", "3334,3335")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	if cfg.PoolName != "mainpool" {
		t.Errorf("Expected pool name mainpool, got %s", cfg.PoolName)
	}
	if cfg.Primary.Name != "bitcoin" {
		t.Errorf("Expected chain bitcoin, got %s", cfg.Primary.Name)
	}
	if cfg.Primary.MinPayment != 0.01 {
		t.Errorf("Expected minimum payment 0.01, got %v", cfg.Primary.MinPayment)
	}
	if cfg.Primary.Magnitude != 100000000 {
		t.Errorf("Expected magnitude 1e8, got %d", cfg.Primary.Magnitude)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("Expected two brokers, got %v", cfg.KafkaBrokers)
	}
	if !cfg.IsSoloPort(3334) || !cfg.IsSoloPort(3335) {
		t.Error("Expected configured solo ports recognized")
	}
	if cfg.IsSoloPort(3333) {
		t.Error("Expected unlisted port not treated as solo")
	}
}

func TestChainsPrimaryFirst(t *testing.T) {
	t.Setenv("AUX_ENABLED", "true")
	t.Setenv("AUX_CHAIN", "namecoin")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}

	chains := cfg.Chains()
	if len(chains) != 2 {
		t.Fatalf("Expected two chains, got %d", len(chains))
	}
	if chains[0].Name != cfg.Primary.Name || chains[1].Name != "namecoin" {
		t.Errorf("Expected primary first, got %v", []string{chains[0].Name, chains[1].Name})
	}
}

func TestValidateRejectsDisabledPrimary(t *testing.T) {
	t.Setenv("PRIMARY_ENABLED", "false")

	if _, err := Load(); err == nil {
		t.Error("Expected an error for a disabled primary chain")
	}
}

func TestValidateRejectsNegativeFee(t *testing.T) {
	t.Setenv("PRIMARY_FEE", "-0.01")

	if _, err := Load(); err == nil {
		t.Error("Expected an error for a negative fee")
	}
}

func TestValidateRejectsZeroMinPayment(t *testing.T) {
	t.Setenv("PRIMARY_MIN_PAYMENT", "0")

	if _, err := Load(); err == nil {
		t.Error("Expected an error for a zero minimum payment")
	}
}

func TestValidateRejectsPaymentShorterThanCheck(t *testing.T) {
	t.Setenv("PRIMARY_CHECK_INTERVAL", "10m")
	t.Setenv("PRIMARY_PAYMENT_INTERVAL", "1m")

	if _, err := Load(); err == nil {
		t.Error("Expected an error when payments run more often than checks")
	}
}

func TestMalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("PRIMARY_RPC_PORT", "not-a-number")
	t.Setenv("PRIMARY_CHECK_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected config to load, got %v", err)
	}
	if cfg.Primary.RPCPort != 8332 {
		t.Errorf("Expected default port 8332, got %d", cfg.Primary.RPCPort)
	}
	if cfg.Primary.CheckInterval != 70*time.Second {
		t.Errorf("Expected default interval, got %v", cfg.Primary.CheckInterval)
	}
}
