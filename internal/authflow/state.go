// Package authflow implements the client-side authentication state
// machine: user selection, device-trust checking, password/PIN entry,
// first-run setup, and session hydration. There is no GUI in this
// repository to drive it; it is built as a pure, fully unit-tested
// library a CLI or an out-of-scope client embeds, grounded on
// internal/scanactor's command/state/transition shape since the
// teacher repo has no client-side state machine to model directly.
package authflow

// StateKind tags which variant a State value holds.
type StateKind string

const (
	StateLoadingUsers       StateKind = "loading_users"
	StateSelectingUser      StateKind = "selecting_user"
	StateCheckingDevice     StateKind = "checking_device"
	StateEnteringCredentials StateKind = "entering_credentials"
	StateSettingUpPin       StateKind = "setting_up_pin"
	StatePreAuthLogin       StateKind = "pre_auth_login"
	StateFirstRunSetup      StateKind = "first_run_setup"
	StateCheckingAutoLogin  StateKind = "checking_auto_login"
	StateAuthenticated      StateKind = "authenticated"
)

// InputType selects whether EnteringCredentials is collecting a
// password or a device PIN.
type InputType string

const (
	InputPassword InputType = "password"
	InputPIN      InputType = "pin"
)

// AuthMode records how an Authenticated session was reached.
type AuthMode string

const (
	ModeOnline    AuthMode = "online"
	ModeAutoLogin AuthMode = "auto_login"
)

// UserSummary is the minimal user-selection list entry.
type UserSummary struct {
	ID          string
	DisplayName string
	HasPIN      bool
}

// SelectingUserState lists the accounts available to choose from.
type SelectingUserState struct {
	Users []UserSummary
	Error string
}

// CheckingDeviceState is a transient state while the device-trust
// lookup for the selected user is in flight.
type CheckingDeviceState struct {
	User UserSummary
}

// EnteringCredentialsState tracks everything the password/PIN entry
// form needs, including the lockout countdown.
type EnteringCredentialsState struct {
	User              UserSummary
	InputType         InputType
	Input             string
	Show              bool
	Remember          bool
	Error             string
	AttemptsRemaining *int
	Loading           bool
}

// SettingUpPinState is shown once, right after a remembered login on
// a device with no PIN yet.
type SettingUpPinState struct {
	User    UserSummary
	PIN     string
	Confirm string
	Error   string
}

// PreAuthLoginState covers any server-driven login step gated on a
// one-time setup or claim token issued before full authentication.
type PreAuthLoginState struct {
	User  UserSummary
	Token string
	Error string
}

// FirstRunSetupState drives the very first admin account creation
// when LoadingUsers finds no accounts at all.
type FirstRunSetupState struct {
	Error string
}

// AuthenticatedState is the terminal success state.
type AuthenticatedState struct {
	User UserSummary
	Mode AuthMode
}

// State is the sum type over every step of the flow. Exactly one of
// the pointer fields is populated, selected by Kind; callers switch on
// Kind rather than doing a type assertion.
type State struct {
	Kind StateKind

	SelectingUser      *SelectingUserState
	CheckingDevice     *CheckingDeviceState
	EnteringCredentials *EnteringCredentialsState
	SettingUpPin       *SettingUpPinState
	PreAuthLogin       *PreAuthLoginState
	FirstRunSetup      *FirstRunSetupState
	Authenticated      *AuthenticatedState
}

func loadingUsers() State { return State{Kind: StateLoadingUsers} }

func checkingAutoLogin() State { return State{Kind: StateCheckingAutoLogin} }

func selectingUsers(users []UserSummary, errMsg string) State {
	return State{Kind: StateSelectingUser, SelectingUser: &SelectingUserState{Users: users, Error: errMsg}}
}

func checkingDevice(user UserSummary) State {
	return State{Kind: StateCheckingDevice, CheckingDevice: &CheckingDeviceState{User: user}}
}

func enteringCredentials(s EnteringCredentialsState) State {
	return State{Kind: StateEnteringCredentials, EnteringCredentials: &s}
}

func settingUpPin(user UserSummary) State {
	return State{Kind: StateSettingUpPin, SettingUpPin: &SettingUpPinState{User: user}}
}

func firstRunSetup() State {
	return State{Kind: StateFirstRunSetup, FirstRunSetup: &FirstRunSetupState{}}
}

func authenticated(user UserSummary, mode AuthMode) State {
	return State{Kind: StateAuthenticated, Authenticated: &AuthenticatedState{User: user, Mode: mode}}
}
