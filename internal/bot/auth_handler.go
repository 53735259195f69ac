package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/raine/telegram-cin-bot/internal/cin"
	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// AuthHandler drives login, OTP verification, registration and password
// reset conversations against the remote auth service.
type AuthHandler struct {
	sessionStore storage.SessionStore
	auth         cin.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(sessionStore storage.SessionStore, auth cin.AuthService) *AuthHandler {
	return &AuthHandler{
		sessionStore: sessionStore,
		auth:         auth,
	}
}

// HandleMessage handles messages during auth flow.
// Returns true if the message was handled (auth flow is active).
// Called from session worker - no locking needed.
func (h *AuthHandler) HandleMessage(ctx context.Context, session *UserSession, text string) bool {
	if session.IsAuthFlowTimedOut() {
		session.authFlow.Reset()
		session.reply(MsgAuthTimeout)
		return true
	}

	if !session.IsAuthFlowActive() {
		return false
	}

	h.handleAuthFlowMessage(ctx, session, strings.TrimSpace(text))
	return true
}

// handleAuthFlowMessage handles messages during an auth flow.
// Called from session worker - no locking needed.
func (h *AuthHandler) handleAuthFlowMessage(ctx context.Context, session *UserSession, text string) {
	if command, _ := parseCommand(text); command == "/cancel" {
		h.cancel(session)
		return
	}

	// Reject other commands during auth flow
	if strings.HasPrefix(text, "/") {
		session.reply(MsgAuthInProgress)
		return
	}

	session.authFlow.Touch()

	switch session.authFlow.State {
	case AuthStateAwaitingLoginEmail:
		session.authFlow.Email = text
		session.authFlow.State = AuthStateAwaitingLoginPassword
		session.reply(MsgLoginPromptPassword)
	case AuthStateAwaitingLoginPassword:
		h.handleLoginPassword(ctx, session, text)
	case AuthStateAwaitingOTP:
		h.handleOTP(ctx, session, text)
	case AuthStateAwaitingRegisterEmail:
		session.authFlow.Email = text
		session.authFlow.State = AuthStateAwaitingRegisterPassword
		session.reply(MsgRegisterPromptPassword)
	case AuthStateAwaitingRegisterPassword:
		h.handleRegisterPassword(ctx, session, text)
	case AuthStateAwaitingForgotEmail:
		h.handleForgotEmail(ctx, session, text)
	}
}

// cancel aborts the flow. A pending OTP verification falls back to anonymous.
func (h *AuthHandler) cancel(session *UserSession) {
	if session.authFlow.State == AuthStateAwaitingOTP {
		h.saveState(session, SessionAnonymous, "")
	}
	session.authFlow.Reset()
	session.reply(MsgAuthCancelled)
}

// HandleLoginCommand starts the login flow.
func (h *AuthHandler) HandleLoginCommand(session *UserSession) {
	if session.IsAuthenticated() {
		session.reply(MsgLoginAlreadyLoggedIn)
		return
	}
	session.authFlow.State = AuthStateAwaitingLoginEmail
	session.authFlow.Touch()
	session.reply(MsgLoginPromptEmail)
}

// HandleRegisterCommand starts the registration flow.
func (h *AuthHandler) HandleRegisterCommand(session *UserSession) {
	if session.IsAuthenticated() {
		session.reply(MsgLoginAlreadyLoggedIn)
		return
	}
	session.authFlow.State = AuthStateAwaitingRegisterEmail
	session.authFlow.Touch()
	session.reply(MsgRegisterPromptEmail)
}

// HandleForgotPasswordCommand starts the password reset flow.
func (h *AuthHandler) HandleForgotPasswordCommand(session *UserSession) {
	session.authFlow.State = AuthStateAwaitingForgotEmail
	session.authFlow.Touch()
	session.reply(MsgForgotPromptEmail)
}

// HandleLogoutCommand forgets the user's auth state.
func (h *AuthHandler) HandleLogoutCommand(session *UserSession) {
	session.authFlow.Reset()
	session.setState(SessionAnonymous, "")
	if err := h.sessionStore.Delete(session.userId); err != nil {
		session.replyWithError(err)
		return
	}
	session.reply(MsgLoggedOut)
}

func (h *AuthHandler) handleLoginPassword(ctx context.Context, session *UserSession, password string) {
	email := session.authFlow.Email
	msg, err := h.auth.Login(ctx, email, password)
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("login failed")
		session.reply(MsgLoginFailed, authErrorText(err))
		session.authFlow.Reset()
		return
	}

	if !h.saveState(session, SessionAwaitingOTP, email) {
		session.authFlow.Reset()
		return
	}
	session.authFlow.State = AuthStateAwaitingOTP
	session.reply(MsgLoginOTPPrompt, escapeMarkdown(msg))
}

func (h *AuthHandler) handleOTP(ctx context.Context, session *UserSession, otp string) {
	email := session.authFlow.Email
	if _, err := h.auth.VerifyOTP(ctx, email, otp); err != nil {
		// The code may have been mistyped; stay at this step.
		log.Warn().Err(err).Int64("userId", session.userId).Msg("otp verification failed")
		session.reply(MsgOTPFailed, authErrorText(err))
		return
	}

	if !h.saveState(session, SessionAuthenticated, email) {
		return
	}
	session.authFlow.Reset()
	session.reply(MsgLoginSuccess)
	log.Info().Int64("userId", session.userId).Msg("user logged in successfully")
}

func (h *AuthHandler) handleRegisterPassword(ctx context.Context, session *UserSession, password string) {
	email := session.authFlow.Email
	session.authFlow.Reset()

	msg, err := h.auth.Register(ctx, email, password)
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("registration failed")
		session.reply(MsgRegisterFailed, authErrorText(err))
		return
	}
	session.reply(MsgRegisterSuccess, escapeMarkdown(msg))
}

func (h *AuthHandler) handleForgotEmail(ctx context.Context, session *UserSession, email string) {
	session.authFlow.Reset()

	msg, err := h.auth.ForgotPassword(ctx, email)
	if err != nil {
		log.Warn().Err(err).Int64("userId", session.userId).Msg("forgot password failed")
		session.reply(MsgForgotFailed, authErrorText(err))
		return
	}
	if msg == "" {
		msg = MsgOk
	}
	session.reply(MsgForgotSuccess, escapeMarkdown(msg))
}

// saveState persists and applies a new session state. It replies and
// returns false on storage failure.
func (h *AuthHandler) saveState(session *UserSession, state SessionState, email string) bool {
	stored := &storage.StoredSession{
		TelegramID: session.userId,
		Email:      email,
		State:      state.String(),
	}
	if err := h.sessionStore.Save(stored); err != nil {
		log.Error().Err(err).Msg("failed to save session")
		session.replyWithError(err)
		return false
	}
	session.setState(state, email)
	return true
}

// authErrorText is the server's error message, or a generic one.
func authErrorText(err error) string {
	var apiErr *cin.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return escapeMarkdown(apiErr.Message)
	}
	return MsgFallbackError
}
