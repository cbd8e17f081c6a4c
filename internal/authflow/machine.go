package authflow

import (
	"context"
	"strings"
)

// PINLength is the fixed PIN size the device trust flow accepts.
const PINLength = 4

// Machine drives the client-side authentication flow one transition
// at a time, exactly like scanactor.Actor processes one command at a
// time off its channel — the difference is a Machine is called
// synchronously by its owner rather than owning its own goroutine,
// since a UI layer needs the new State back from the call that caused
// it.
type Machine struct {
	backend Backend
	state   State
}

// New constructs a Machine in LoadingUsers, the flow's entry state.
func New(backend Backend) *Machine {
	return &Machine{backend: backend, state: loadingUsers()}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// LoadUsers fetches the account list. An empty list routes to
// FirstRunSetup; otherwise the user lands on SelectingUser.
func (m *Machine) LoadUsers(ctx context.Context) State {
	users, err := m.backend.ListUsers(ctx)
	if err != nil {
		m.state = selectingUsers(nil, err.Error())
		return m.state
	}
	if len(users) == 0 {
		m.state = firstRunSetup()
		return m.state
	}
	m.state = selectingUsers(users, "")
	return m.state
}

// SelectUser checks device trust for the chosen user and routes to
// PIN entry (trusted device with a PIN already set) or password entry.
func (m *Machine) SelectUser(ctx context.Context, user UserSummary) State {
	m.state = checkingDevice(user)

	status, err := m.backend.CheckDevice(ctx, user.ID)
	if err != nil {
		m.state = selectingUsers(nil, err.Error())
		return m.state
	}

	if status.Registered && status.HasPIN {
		remaining := status.AttemptsRemaining
		m.state = enteringCredentials(EnteringCredentialsState{
			User:              user,
			InputType:         InputPIN,
			AttemptsRemaining: &remaining,
		})
		return m.state
	}

	m.state = enteringCredentials(EnteringCredentialsState{
		User:      user,
		InputType: InputPassword,
	})
	return m.state
}

// SubmitCredentials submits whatever is currently entered (password or
// PIN, per the active InputType). On success it either moves to
// SettingUpPin (a remembered login on a PIN-less device) or straight
// to Authenticated. On failure it stays in EnteringCredentials with
// the error recorded and, for lockout-shaped errors, AttemptsRemaining
// decremented.
func (m *Machine) SubmitCredentials(ctx context.Context, deviceHasPIN bool) State {
	ec := m.state.EnteringCredentials
	if ec == nil {
		return m.state
	}

	ec.Loading = true

	var result LoginResult
	switch ec.InputType {
	case InputPIN:
		result = m.backend.LoginPIN(ctx, ec.User.ID, ec.Input)
	default:
		result = m.backend.LoginPassword(ctx, ec.User.ID, ec.Input)
	}

	ec.Loading = false

	if !result.OK {
		ec.Error = errString(result.Err)
		if isLockoutError(ec.Error) {
			ec.AttemptsRemaining = decrementClamped(ec.AttemptsRemaining)
		} else if result.AttemptsRemaining != nil {
			ec.AttemptsRemaining = result.AttemptsRemaining
		}
		m.state = enteringCredentials(*ec)
		return m.state
	}

	if ec.InputType == InputPassword && ec.Remember && !deviceHasPIN {
		m.state = settingUpPin(ec.User)
		return m.state
	}

	m.state = authenticated(ec.User, ModeOnline)
	return m.state
}

// SubmitPIN completes device PIN setup: the two fields must match and
// be exactly PINLength digits.
func (m *Machine) SubmitPIN(ctx context.Context) State {
	sp := m.state.SettingUpPin
	if sp == nil {
		return m.state
	}

	if len(sp.PIN) != PINLength || !allDigits(sp.PIN) {
		sp.Error = "PIN must be exactly 4 digits"
		m.state = State{Kind: StateSettingUpPin, SettingUpPin: sp}
		return m.state
	}
	if sp.PIN != sp.Confirm {
		sp.Error = "PINs do not match"
		m.state = State{Kind: StateSettingUpPin, SettingUpPin: sp}
		return m.state
	}

	if err := m.backend.SetDevicePIN(ctx, sp.User.ID, sp.PIN); err != nil {
		sp.Error = err.Error()
		m.state = State{Kind: StateSettingUpPin, SettingUpPin: sp}
		return m.state
	}

	m.state = authenticated(sp.User, ModeOnline)
	return m.state
}

// CheckAutoLogin transitions to CheckingAutoLogin, the state an
// application shows while it tries a stored refresh token before
// falling back to interactive login.
func (m *Machine) CheckAutoLogin() State {
	m.state = checkingAutoLogin()
	return m.state
}

// CompleteAutoLogin finishes a successful silent login.
func (m *Machine) CompleteAutoLogin(user UserSummary) State {
	m.state = authenticated(user, ModeAutoLogin)
	return m.state
}

// FailAutoLogin falls back to interactive user selection after a
// failed silent login.
func (m *Machine) FailAutoLogin(ctx context.Context) State {
	return m.LoadUsers(ctx)
}

// Logout clears the authenticated session and returns to LoadingUsers.
func (m *Machine) Logout() State {
	m.state = loadingUsers()
	return m.state
}

// isLockoutError reports whether an error message is one the server
// uses for device lockout, per spec: any message containing "locked"
// or "attempts" decrements the remaining-attempts counter.
func isLockoutError(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "locked") || strings.Contains(lower, "attempts")
}

func decrementClamped(remaining *int) *int {
	n := 0
	if remaining != nil {
		n = *remaining - 1
	}
	if n < 0 {
		n = 0
	}
	return &n
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
