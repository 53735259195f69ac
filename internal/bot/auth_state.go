package bot

import (
	"time"
)

// SessionState is where a user stands with the remote auth service.
// It is persisted so a restart does not lose a pending OTP verification.
type SessionState int

const (
	SessionAnonymous SessionState = iota
	SessionAwaitingOTP
	SessionAuthenticated
)

func (s SessionState) String() string {
	switch s {
	case SessionAnonymous:
		return "anonymous"
	case SessionAwaitingOTP:
		return "awaiting_otp"
	case SessionAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// parseSessionState maps a stored value back to a SessionState. Unknown
// values fall back to anonymous.
func parseSessionState(s string) SessionState {
	switch s {
	case "awaiting_otp":
		return SessionAwaitingOTP
	case "authenticated":
		return SessionAuthenticated
	default:
		return SessionAnonymous
	}
}

// AuthState represents the current step of a conversational auth flow.
type AuthState int

const (
	AuthStateNone AuthState = iota
	AuthStateAwaitingLoginEmail
	AuthStateAwaitingLoginPassword
	AuthStateAwaitingOTP
	AuthStateAwaitingRegisterEmail
	AuthStateAwaitingRegisterPassword
	AuthStateAwaitingForgotEmail
)

// AuthFlowTimeout is how long we wait for user input before resetting the auth flow.
const AuthFlowTimeout = 15 * time.Minute

// AuthFlow tracks the state of an ongoing login, registration or password
// reset. Passwords are sent on as soon as they arrive and never kept.
type AuthFlow struct {
	State           AuthState
	Email           string
	LastInteraction time.Time
}

// NewAuthFlow creates a new auth flow in the initial state.
func NewAuthFlow() *AuthFlow {
	return &AuthFlow{
		State:           AuthStateNone,
		LastInteraction: time.Now(),
	}
}

// IsActive returns true if an auth flow is in progress.
func (f *AuthFlow) IsActive() bool {
	return f.State != AuthStateNone
}

// IsTimedOut returns true if the auth flow has been inactive for too long.
func (f *AuthFlow) IsTimedOut() bool {
	if !f.IsActive() {
		return false
	}
	return time.Since(f.LastInteraction) > AuthFlowTimeout
}

// Reset clears the auth flow state.
func (f *AuthFlow) Reset() {
	f.State = AuthStateNone
	f.Email = ""
	f.LastInteraction = time.Now()
}

// Touch updates the last interaction time.
func (f *AuthFlow) Touch() {
	f.LastInteraction = time.Now()
}

func (s AuthState) String() string {
	switch s {
	case AuthStateNone:
		return "None"
	case AuthStateAwaitingLoginEmail:
		return "AwaitingLoginEmail"
	case AuthStateAwaitingLoginPassword:
		return "AwaitingLoginPassword"
	case AuthStateAwaitingOTP:
		return "AwaitingOTP"
	case AuthStateAwaitingRegisterEmail:
		return "AwaitingRegisterEmail"
	case AuthStateAwaitingRegisterPassword:
		return "AwaitingRegisterPassword"
	case AuthStateAwaitingForgotEmail:
		return "AwaitingForgotEmail"
	default:
		return "Unknown"
	}
}
