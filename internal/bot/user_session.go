package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/pipeline"
)

// SessionMessage represents a message to be processed by the session worker.
type SessionMessage struct {
	Type string
	Ctx  context.Context
	Done chan struct{} // Closed when processing is complete (for synchronous dispatch)

	// Message data (only one is set based on Type)
	Message       *tgbotapi.Message
	CallbackQuery *tgbotapi.CallbackQuery
	Text          string
}

// MessageSender abstracts the ability to send Telegram messages.
// This interface decouples UserSession from the full Bot struct,
// improving testability.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// PendingPhoto is a photo waiting for the user to answer a permission prompt.
type PendingPhoto struct {
	source capture.Source
	file   telegramFile
}

// MessageHandler is the interface for processing session messages.
// This allows the session to dispatch to external handlers without circular dependencies.
type MessageHandler interface {
	HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage)
}

// UserSession represents a user's session with the bot.
//
// Threading model:
//   - Each session has a dedicated worker goroutine that processes messages sequentially
//   - Message handlers are called only from the worker and can access session
//     state without locks
//   - Public accessors (IsAuthenticated, GetAuthFlowState, etc.) use mutex for external callers
//   - The pipeline guards its own image and result slots
type UserSession struct {
	userId int64
	sender MessageSender
	mu     sync.Mutex

	// Worker channel for sequential message processing
	inbox   chan SessionMessage
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	handler MessageHandler // Set after construction to avoid circular deps

	// Auth state
	state    SessionState
	email    string
	authFlow *AuthFlow

	// Capture state
	pipeline     *pipeline.Pipeline
	cameraArmed  bool          // Next photo is a camera capture
	pendingPhoto *PendingPhoto // Awaiting a permission answer
}

// --- Thread-safe accessors ---

// IsAuthenticated returns true if the user completed OTP verification.
func (s *UserSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SessionAuthenticated
}

// GetSessionState returns the user's auth state.
func (s *UserSession) GetSessionState() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthFlowActive returns true if an auth flow is in progress.
func (s *UserSession) IsAuthFlowActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authFlow != nil && s.authFlow.IsActive()
}

// IsAuthFlowTimedOut returns true if the auth flow has timed out.
func (s *UserSession) IsAuthFlowTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authFlow != nil && s.authFlow.IsTimedOut()
}

// GetAuthFlowState returns the current auth flow state.
func (s *UserSession) GetAuthFlowState() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authFlow == nil {
		return AuthStateNone
	}
	return s.authFlow.State
}

// Pipeline returns the user's capture pipeline.
func (s *UserSession) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

func (s *UserSession) setState(state SessionState, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.email = email
}

// reset drops conversational state. The current image and result are kept.
func (s *UserSession) reset() {
	log.Info().Int64("userId", s.userId).Msg("reset user session")
	if s.authFlow != nil {
		s.authFlow.Reset()
	}
	s.cameraArmed = false
	s.pendingPhoto = nil
}

func (s *UserSession) replyWithError(err error) tgbotapi.Message {
	log.Error().Stack().Err(err).Send()
	return s._reply(formatReplyText(MsgUnexpectedErr, escapeMarkdown(err.Error())), false)
}

// sendTypingAction sends a "typing" chat action to show the user that the bot is processing.
// The typing indicator automatically expires after ~5 seconds in Telegram.
func (s *UserSession) sendTypingAction() {
	action := tgbotapi.NewChatAction(s.userId, tgbotapi.ChatTyping)
	// Use Request instead of Send because sendChatAction returns a boolean, not a Message
	_, err := s.sender.Request(action)
	if err != nil {
		log.Debug().Err(err).Int64("userId", s.userId).Msg("failed to send typing action")
	}
}

// startTypingLoop sends a typing action every 4 seconds until the context is cancelled.
// Run this in a goroutine and cancel the context when done.
func (s *UserSession) startTypingLoop(ctx context.Context) {
	s.sendTypingAction()

	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sendTypingAction()
		}
	}
}

func (s *UserSession) replyWithMessage(msg tgbotapi.MessageConfig) tgbotapi.Message {
	msg.ChatID = s.userId
	sent, err := s.sender.Send(msg)
	if err != nil {
		log.Error().Stack().
			Int64("userId", s.userId).
			Err(fmt.Errorf("failed to send reply message: %w", err)).Send()
	} else {
		log.Debug().Int64("userId", s.userId).Int("messageId", sent.MessageID).Msg("sent message")
	}

	return sent
}

func (s *UserSession) _reply(text string, removeReplyKeyboard bool) tgbotapi.Message {
	msg := tgbotapi.MessageConfig{
		Text:      text,
		ParseMode: tgbotapi.ModeMarkdown,
	}

	if removeReplyKeyboard {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}

	return s.replyWithMessage(msg)
}

func (s *UserSession) reply(text string, a ...any) tgbotapi.Message {
	return s._reply(formatReplyText(text, a...), false)
}

// --- Worker methods ---

// StartWorker starts the session's message processing worker goroutine.
// Must be called after setting the handler.
func (s *UserSession) StartWorker() {
	s.wg.Add(1)
	go s.runWorker()
}

// SetHandler sets the message handler for this session.
func (s *UserSession) SetHandler(handler MessageHandler) {
	s.handler = handler
}

// runWorker is the main worker loop that processes messages sequentially.
func (s *UserSession) runWorker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			// Drain any remaining messages and signal completion
			for {
				select {
				case msg := <-s.inbox:
					if msg.Done != nil {
						close(msg.Done)
					}
				default:
					return
				}
			}
		case msg := <-s.inbox:
			s.processMessage(msg)
		}
	}
}

// processMessage handles a single message from the inbox.
func (s *UserSession) processMessage(msg SessionMessage) {
	defer func() {
		// Recover from any panics to keep the worker running
		if r := recover(); r != nil {
			log.Error().
				Int64("userId", s.userId).
				Interface("panic", r).
				Msg("recovered from panic in session worker")
		}
		if msg.Done != nil {
			close(msg.Done)
		}
	}()

	if s.handler == nil {
		log.Error().Int64("userId", s.userId).Msg("session handler not set")
		return
	}

	s.handler.HandleSessionMessage(msg.Ctx, s, msg)
}

// Send queues a message for processing by the worker.
// This is non-blocking - it returns immediately after queuing.
func (s *UserSession) Send(msg SessionMessage) {
	select {
	case s.inbox <- msg:
	case <-s.ctx.Done():
		if msg.Done != nil {
			close(msg.Done)
		}
	}
}

// SendSync queues a message and waits for it to be processed.
// Returns when the message has been fully processed by the worker.
func (s *UserSession) SendSync(msg SessionMessage) {
	msg.Done = make(chan struct{})
	s.Send(msg)
	<-msg.Done
}

// Stop stops the worker and waits for it to finish.
func (s *UserSession) Stop() {
	s.cancel()
	s.wg.Wait()
}
