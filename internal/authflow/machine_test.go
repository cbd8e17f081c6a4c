package authflow

import (
	"context"
	"errors"
	"testing"
)

type fakeBackend struct {
	users        []UserSummary
	deviceStatus DeviceStatus
	loginResults []LoginResult
	loginCall    int
	pinSet       bool
}

func (f *fakeBackend) ListUsers(ctx context.Context) ([]UserSummary, error) {
	return f.users, nil
}

func (f *fakeBackend) CheckDevice(ctx context.Context, userID string) (DeviceStatus, error) {
	return f.deviceStatus, nil
}

func (f *fakeBackend) LoginPassword(ctx context.Context, userID, password string) LoginResult {
	r := f.loginResults[f.loginCall]
	f.loginCall++
	return r
}

func (f *fakeBackend) LoginPIN(ctx context.Context, userID, pin string) LoginResult {
	r := f.loginResults[f.loginCall]
	f.loginCall++
	return r
}

func (f *fakeBackend) SetDevicePIN(ctx context.Context, userID, pin string) error {
	f.pinSet = true
	return nil
}

func TestLoadUsersEmptyRoutesToFirstRunSetup(t *testing.T) {
	m := New(&fakeBackend{})
	state := m.LoadUsers(context.Background())
	if state.Kind != StateFirstRunSetup {
		t.Fatalf("expected FirstRunSetup, got %v", state.Kind)
	}
}

func TestLoadUsersNonEmptyRoutesToSelectingUser(t *testing.T) {
	m := New(&fakeBackend{users: []UserSummary{{ID: "u1", DisplayName: "Alice"}}})
	state := m.LoadUsers(context.Background())
	if state.Kind != StateSelectingUser {
		t.Fatalf("expected SelectingUser, got %v", state.Kind)
	}
	if len(state.SelectingUser.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(state.SelectingUser.Users))
	}
}

func TestSelectUserRoutesToPINWhenDeviceTrustedWithPIN(t *testing.T) {
	m := New(&fakeBackend{deviceStatus: DeviceStatus{Registered: true, HasPIN: true, AttemptsRemaining: 5}})
	state := m.SelectUser(context.Background(), UserSummary{ID: "u1"})
	if state.Kind != StateEnteringCredentials {
		t.Fatalf("expected EnteringCredentials, got %v", state.Kind)
	}
	if state.EnteringCredentials.InputType != InputPIN {
		t.Fatalf("expected PIN input, got %v", state.EnteringCredentials.InputType)
	}
	if *state.EnteringCredentials.AttemptsRemaining != 5 {
		t.Fatalf("expected attempts_remaining=5, got %d", *state.EnteringCredentials.AttemptsRemaining)
	}
}

func TestSelectUserRoutesToPasswordWhenUntrusted(t *testing.T) {
	m := New(&fakeBackend{deviceStatus: DeviceStatus{Registered: false}})
	state := m.SelectUser(context.Background(), UserSummary{ID: "u1"})
	if state.Kind != StateEnteringCredentials || state.EnteringCredentials.InputType != InputPassword {
		t.Fatalf("expected password entry, got %+v", state)
	}
}

func TestSubmitCredentialsSuccessGoesToSettingUpPinWhenRemembered(t *testing.T) {
	backend := &fakeBackend{loginResults: []LoginResult{{OK: true}}}
	m := New(backend)
	m.state = enteringCredentials(EnteringCredentialsState{
		User: UserSummary{ID: "u1"}, InputType: InputPassword, Remember: true,
	})
	state := m.SubmitCredentials(context.Background(), false)
	if state.Kind != StateSettingUpPin {
		t.Fatalf("expected SettingUpPin, got %v", state.Kind)
	}
}

func TestSubmitCredentialsSuccessGoesToAuthenticatedWhenNotRemembered(t *testing.T) {
	backend := &fakeBackend{loginResults: []LoginResult{{OK: true}}}
	m := New(backend)
	m.state = enteringCredentials(EnteringCredentialsState{User: UserSummary{ID: "u1"}, InputType: InputPassword})
	state := m.SubmitCredentials(context.Background(), false)
	if state.Kind != StateAuthenticated {
		t.Fatalf("expected Authenticated, got %v", state.Kind)
	}
	if state.Authenticated.Mode != ModeOnline {
		t.Fatalf("expected ModeOnline, got %v", state.Authenticated.Mode)
	}
}

func TestSubmitPINRequiresMatchingFourDigits(t *testing.T) {
	m := New(&fakeBackend{})
	m.state = State{Kind: StateSettingUpPin, SettingUpPin: &SettingUpPinState{User: UserSummary{ID: "u1"}, PIN: "1234", Confirm: "4321"}}
	state := m.SubmitPIN(context.Background())
	if state.Kind != StateSettingUpPin || state.SettingUpPin.Error == "" {
		t.Fatalf("expected a mismatch error, got %+v", state)
	}

	m.state = State{Kind: StateSettingUpPin, SettingUpPin: &SettingUpPinState{User: UserSummary{ID: "u1"}, PIN: "12a4", Confirm: "12a4"}}
	state = m.SubmitPIN(context.Background())
	if state.Kind != StateSettingUpPin || state.SettingUpPin.Error == "" {
		t.Fatalf("expected a digits-only error, got %+v", state)
	}

	m.state = State{Kind: StateSettingUpPin, SettingUpPin: &SettingUpPinState{User: UserSummary{ID: "u1"}, PIN: "1234", Confirm: "1234"}}
	state = m.SubmitPIN(context.Background())
	if state.Kind != StateAuthenticated {
		t.Fatalf("expected Authenticated after matching PIN, got %+v", state)
	}
}

// TestAuthLockoutCountdown drives end-to-end scenario 6: four failed
// password attempts where the server reports "too many attempts,
// locked" decrement attempts_remaining by one each time, clamped at 0.
func TestAuthLockoutCountdown(t *testing.T) {
	lockoutErr := errors.New("too many attempts, locked")
	backend := &fakeBackend{loginResults: []LoginResult{
		{OK: false, Err: lockoutErr},
		{OK: false, Err: lockoutErr},
		{OK: false, Err: lockoutErr},
		{OK: false, Err: lockoutErr},
	}}
	m := New(backend)
	start := 3
	m.state = enteringCredentials(EnteringCredentialsState{
		User: UserSummary{ID: "u1"}, InputType: InputPassword, AttemptsRemaining: &start,
	})

	want := []int{2, 1, 0, 0}
	for i, w := range want {
		state := m.SubmitCredentials(context.Background(), false)
		if state.Kind != StateEnteringCredentials {
			t.Fatalf("attempt %d: expected to stay in EnteringCredentials, got %v", i, state.Kind)
		}
		got := *state.EnteringCredentials.AttemptsRemaining
		if got != w {
			t.Errorf("attempt %d: attempts_remaining = %d, want %d", i, got, w)
		}
		m.state = enteringCredentials(*state.EnteringCredentials)
	}
}

func TestLogoutReturnsToLoadingUsers(t *testing.T) {
	m := New(&fakeBackend{})
	m.state = authenticated(UserSummary{ID: "u1"}, ModeOnline)
	if state := m.Logout(); state.Kind != StateLoadingUsers {
		t.Fatalf("expected LoadingUsers, got %v", state.Kind)
	}
}

func TestNonLockoutErrorDoesNotDecrementAttempts(t *testing.T) {
	backend := &fakeBackend{loginResults: []LoginResult{{OK: false, Err: errors.New("wrong password")}}}
	m := New(backend)
	start := 3
	m.state = enteringCredentials(EnteringCredentialsState{
		User: UserSummary{ID: "u1"}, InputType: InputPassword, AttemptsRemaining: &start,
	})
	state := m.SubmitCredentials(context.Background(), false)
	if *state.EnteringCredentials.AttemptsRemaining != 3 {
		t.Fatalf("expected attempts_remaining unchanged at 3, got %d", *state.EnteringCredentials.AttemptsRemaining)
	}
}
