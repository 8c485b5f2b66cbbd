package rule

import (
	"testing"

	"stockpile/internal/service/inventory/domain"
)

func TestFaultRuleMatches(t *testing.T) {
	injector, err := NewCELFaultInjector(`order_id == 42 || num_tokens > 50`)
	if err != nil {
		t.Fatalf("expected rule to compile, got: %v", err)
	}

	cases := []struct {
		name string
		task domain.Task
		want bool
	}{
		{"order match", domain.Task{OrderID: 42, NumTokens: 1}, true},
		{"token match", domain.Task{OrderID: 1, NumTokens: 51}, true},
		{"no match", domain.Task{OrderID: 1, NumTokens: 10}, false},
	}
	for _, tc := range cases {
		got, err := injector.ShouldFail(tc.task)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestFaultRuleRejectsBadExpression(t *testing.T) {
	if _, err := NewCELFaultInjector(`order_id ==`); err == nil {
		t.Error("expected compile error for malformed expression")
	}
}

func TestFaultRuleRejectsNonBoolResult(t *testing.T) {
	injector, err := NewCELFaultInjector(`num_tokens + 1`)
	if err != nil {
		// Some expressions fail at compile time already; that is fine too.
		return
	}
	if _, err := injector.ShouldFail(domain.Task{NumTokens: 1}); err == nil {
		t.Error("expected error for non-boolean rule result")
	}
}
