package core

import (
	"context"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1000", "1200", -1},
		{"1200", "1000", 1},
		{"1200", "1200", 0},
		{"900", "1000", -1},
		{"", "1000", -1},
		{"1000", "", 1},
		{"1.2", "1.10", 1},
	}
	for _, tc := range cases {
		if got := CompareVersions(tc.a, tc.b); got != tc.want {
			t.Fatalf("CompareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestPluginRegistryGuards(t *testing.T) {
	r := NewPluginRegistry()
	if err := r.RegisterType(TypeInfo{}); err == nil {
		t.Fatalf("expected unnamed type error")
	}
	if err := r.RegisterType(TypeInfo{Name: "Antibiotic"}); err != nil {
		t.Fatalf("register type: %v", err)
	}
	if err := r.RegisterType(TypeInfo{Name: "Antibiotic"}); err == nil {
		t.Fatalf("expected duplicate type error")
	}
	if err := r.RegisterVocabulary("", nil); err == nil {
		t.Fatalf("expected vocabulary validation error")
	}
	vocab := func(TransactionView) []Term { return nil }
	if err := r.RegisterVocabulary("b", vocab); err != nil {
		t.Fatalf("register vocabulary: %v", err)
	}
	_ = r.RegisterVocabulary("a", vocab)
	if err := r.RegisterVocabulary("a", vocab); err == nil {
		t.Fatalf("expected duplicate vocabulary error")
	}
	if names := r.VocabularyNames(); joined(names) != "a,b" {
		t.Fatalf("unexpected vocabulary names %v", names)
	}
	noop := func(context.Context, Transaction, Logger) error { return nil }
	if err := r.RegisterUpgradeStep(UpgradeStep{Version: "1200"}); err == nil {
		t.Fatalf("expected step without handler to fail")
	}
	_ = r.RegisterUpgradeStep(UpgradeStep{Version: "1200", Run: noop})
	if err := r.RegisterUpgradeStep(UpgradeStep{Version: "1200", Run: noop}); err == nil {
		t.Fatalf("expected duplicate step error")
	}
	_ = r.RegisterUpgradeStep(UpgradeStep{Version: "1100", Run: noop})
	steps := r.UpgradeSteps()
	if len(steps) != 2 || steps[0].Version != "1100" {
		t.Fatalf("expected steps sorted by version, got %+v", steps)
	}
	r.RegisterRule(nil)
	r.RegisterHandler(PhaseSetup, nil)
	r.RegisterUninstallHandler(nil)
	if len(r.Rules()) != 0 || len(r.handlers[PhaseSetup]) != 0 || len(r.uninstall) != 0 {
		t.Fatalf("nil registrations should be ignored")
	}
}
