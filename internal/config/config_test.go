package config

import "testing"

func TestNewForTestingValidates(t *testing.T) {
	cfg := NewForTesting()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if cfg.GetHTTPAddr() != ":8001" {
		t.Fatalf("addr %q", cfg.GetHTTPAddr())
	}
}

func TestValidateProxyTrustNeedsSecret(t *testing.T) {
	cfg := NewForTesting()
	cfg.TrustProxyHeaders = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("proxy trust without secret must fail")
	}
	cfg.InternalAuthSecret = "s3cret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestValidateTTLBounds(t *testing.T) {
	cfg := NewForTesting()
	cfg.ReservationMaxTTLSeconds = cfg.ReservationDefaultTTLSeconds - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("max below default must fail")
	}

	cfg = NewForTesting()
	cfg.HangOnExtensionSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("non-positive hang-on extension must fail")
	}
}
