package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestUser_Authorize(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ends := now

	tests := []struct {
		name string
		user User
		at   time.Time
		want error
	}{
		{"trial before end", User{IsActive: true, Plan: PlanFree, TrialEndsAt: &ends}, now.Add(-time.Minute), nil},
		{"trial at end", User{IsActive: true, Plan: PlanFree, TrialEndsAt: &ends}, now, nil},
		{"trial after end", User{IsActive: true, Plan: PlanFree, TrialEndsAt: &ends}, now.Add(time.Nanosecond), ErrTrialExpired},
		{"no trial recorded", User{IsActive: true, Plan: PlanFree}, now, ErrTrialExpired},
		{"paid ignores trial", User{IsActive: true, Plan: PlanPaid, TrialEndsAt: &ends}, now.Add(48 * time.Hour), nil},
		{"inactive paid", User{IsActive: false, Plan: PlanPaid}, now, ErrAccountInactive},
		{"inactive in trial", User{IsActive: false, Plan: PlanFree, TrialEndsAt: &ends}, now.Add(-time.Hour), ErrAccountInactive},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.user.Authorize(tc.at); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestSelectedPlan_Terms(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		plan     SelectedPlan
		wantPlan Plan
		wantDays int
	}{
		{SelectedFree, PlanFree, 7},
		{SelectedWeekly, PlanPaid, 7},
		{SelectedMonthly, PlanPaid, 30},
		{SelectedQuarterly, PlanPaid, 90},
	}
	for _, tc := range tests {
		plan, ends, err := tc.plan.Terms(now)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.plan, err)
		}
		if plan != tc.wantPlan {
			t.Errorf("%s: expected plan %s, got %s", tc.plan, tc.wantPlan, plan)
		}
		if want := now.AddDate(0, 0, tc.wantDays); !ends.Equal(want) {
			t.Errorf("%s: expected trial end %v, got %v", tc.plan, want, ends)
		}
	}

	if _, _, err := SelectedPlan("yearly").Terms(now); err != ErrInvalidPlan {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestSessionStatus_CanTransitionTo(t *testing.T) {
	allowed := [][2]SessionStatus{
		{SessionDisconnected, SessionConnecting},
		{SessionConnecting, SessionConnected},
		{SessionConnecting, SessionError},
		{SessionConnecting, SessionDisconnected},
		{SessionConnected, SessionDisconnected},
		{SessionError, SessionConnecting},
		{SessionError, SessionDisconnected},
	}
	for _, p := range allowed {
		if !p[0].CanTransitionTo(p[1]) {
			t.Errorf("expected %s -> %s to be allowed", p[0], p[1])
		}
	}

	forbidden := [][2]SessionStatus{
		{SessionDisconnected, SessionConnected},
		{SessionConnected, SessionConnecting},
		{SessionError, SessionConnected},
		{SessionDisconnected, SessionError},
	}
	for _, p := range forbidden {
		if p[0].CanTransitionTo(p[1]) {
			t.Errorf("expected %s -> %s to be rejected", p[0], p[1])
		}
	}
}

func TestSessionStatus_Transition(t *testing.T) {
	if err := SessionConnecting.Transition(SessionConnected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := SessionDisconnected.Transition(SessionConnected)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), "disconnected -> connected") {
		t.Errorf("expected both states in %q", err)
	}
}

func TestNormalizeRecipient(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "5511999999999", want: "5511999999999@s.whatsapp.net"},
		{in: "+55 (11) 99999-9999", want: "5511999999999@s.whatsapp.net"},
		{in: "120363000000000000@g.us", want: "120363000000000000@g.us"},
		{in: "0551199999999", wantErr: true},
		{in: "5", wantErr: true},
		{in: "1234567890123456", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := NormalizeRecipient(tc.in)
		if tc.wantErr {
			if err != ErrInvalidRecipient {
				t.Errorf("%q: expected ErrInvalidRecipient, got %q %v", tc.in, got, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: expected %q, got %q %v", tc.in, tc.want, got, err)
		}
	}
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 100)
	if got := Truncate(short); got != short {
		t.Fatalf("expected 100 chars untouched")
	}

	long := strings.Repeat("é", 101)
	got := Truncate(long)
	if got != strings.Repeat("é", 100)+"..." {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}

func TestCredential_Preview(t *testing.T) {
	c := Credential{Key: "zap_0123456789abcdef"}
	if got := c.Preview(); got != "zap_0123..." {
		t.Fatalf("unexpected preview %q", got)
	}
	if !HasKeyPrefix(c.Key) || HasKeyPrefix("zap_") || HasKeyPrefix("key_123") {
		t.Fatalf("unexpected key prefix detection")
	}
	if !HasSecretPrefix("sk_abc") || HasSecretPrefix("sk_") {
		t.Fatalf("unexpected secret prefix detection")
	}
}
