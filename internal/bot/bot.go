package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/cin"
	"github.com/raine/telegram-cin-bot/internal/pipeline"
	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// Set at build time with -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Services are the remote collaborators the bot talks to.
type Services struct {
	Auth      cin.AuthService
	Extractor pipeline.Extractor
	// DefaultViewport is used for users who never set /preview.
	DefaultViewport capture.Viewport
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg              BotAPI
	state           BotState
	sessionStore    storage.SessionStore
	extractor       pipeline.Extractor
	defaultViewport capture.Viewport
	adminID         int64

	// Handlers
	authHandler    *AuthHandler
	captureHandler *CaptureHandler
}

// NewBot creates a new Bot instance.
func NewBot(tg BotAPI, sessionStore storage.SessionStore, adminID int64, services Services) *Bot {
	bot := &Bot{
		tg:              tg,
		sessionStore:    sessionStore,
		extractor:       services.Extractor,
		defaultViewport: services.DefaultViewport,
		adminID:         adminID,
	}

	bot.state = bot.NewBotState()
	bot.authHandler = NewAuthHandler(sessionStore, services.Auth)
	bot.captureHandler = NewCaptureHandler(tg, sessionStore)

	return bot
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to complete.
// Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	var userId int64

	if update.CallbackQuery != nil {
		userId = update.CallbackQuery.From.ID
	} else if update.Message != nil && update.Message.From != nil {
		userId = update.Message.From.ID
	} else {
		return
	}

	// Check if user is allowed (admin always allowed)
	// MUST be before getUserSession to prevent memory exhaustion from random user IDs
	if userId != b.adminID {
		allowed, err := b.sessionStore.IsUserAllowed(userId)
		if err != nil {
			log.Error().Err(err).Int64("userId", userId).Msg("whitelist check failed")
			return // Fail closed
		}
		if !allowed {
			return // Silent drop
		}
	}

	session, err := b.state.getUserSession(userId)
	if err != nil {
		log.Error().Err(err).Send()
		return
	}

	send := func(msg SessionMessage) {
		if sync {
			session.SendSync(msg)
		} else {
			session.Send(msg)
		}
	}

	if update.CallbackQuery != nil {
		send(SessionMessage{
			Type:          "callback",
			Ctx:           ctx,
			CallbackQuery: update.CallbackQuery,
		})
		return
	}

	msgType := "text"
	if len(update.Message.Photo) > 0 || update.Message.Document != nil {
		msgType = "photo"
	}
	log.Info().Int64("userId", userId).Str("type", msgType).Msg("got message")

	send(SessionMessage{
		Type:    msgType,
		Ctx:     ctx,
		Message: update.Message,
	})
}

// HandleSessionMessage implements MessageHandler interface.
// This is called by the session worker goroutine for sequential processing.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "callback":
		b.handleCallbackQuery(ctx, session, msg.CallbackQuery)
	case "photo":
		b.handlePhotoMessage(ctx, session, msg.Message)
	case "text":
		b.handleTextMessage(ctx, session, msg.Message)
	}
}

// handlePhotoMessage processes photo and image document messages.
// Called from session worker - no locking needed.
func (b *Bot) handlePhotoMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if session.IsAuthFlowActive() {
		session.reply(MsgAuthInProgress)
		return
	}
	if !session.IsAuthenticated() {
		session.reply(MsgLoginRequired)
		return
	}
	b.captureHandler.HandlePhoto(ctx, session, message)
}

// handleTextMessage processes text messages.
// Called from session worker - no locking needed.
func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	if b.authHandler.HandleMessage(ctx, session, message.Text) {
		return
	}
	b.handleCommand(ctx, session, message)
}

// commands that work without being logged in
var publicCommands = map[string]bool{
	"/start":           true,
	"/login":           true,
	"/register":        true,
	"/forgot_password": true,
	"/logout":          true,
	"/cancel":          true,
	"/version":         true,
	"/admin":           true,
}

// handleCommand processes bot commands.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, args := parseCommand(message.Text)

	if !publicCommands[command] && !session.IsAuthenticated() {
		session.reply(MsgLoginRequired)
		return
	}

	switch command {
	case "/start":
		if !session.IsAuthenticated() {
			session.reply(MsgLoginRequired)
		} else {
			session.reply(MsgStartPrompt)
		}
	case "/login":
		b.authHandler.HandleLoginCommand(session)
	case "/register":
		b.authHandler.HandleRegisterCommand(session)
	case "/forgot_password":
		b.authHandler.HandleForgotPasswordCommand(session)
	case "/logout":
		b.authHandler.HandleLogoutCommand(session)
	case "/cancel":
		session.reset()
		session._reply(MsgCancelled, true)
	case "/camera":
		b.captureHandler.HandleCameraCommand(session)
	case "/send":
		b.captureHandler.HandleSendCommand(ctx, session)
	case "/result":
		b.captureHandler.HandleResultCommand(session)
	case "/clear":
		b.captureHandler.HandleClearCommand(session)
	case "/history":
		b.captureHandler.HandleHistoryCommand(session, args)
	case "/revoke":
		b.captureHandler.HandleRevokeCommand(session, args)
	case "/preview":
		b.captureHandler.HandlePreviewCommand(session, args)
	case "/admin":
		b.handleAdminCommand(session, args)
	case "/version":
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		session.reply(MsgStartPrompt)
	}
}

// handleCallbackQuery handles inline keyboard button presses.
// Called from session worker - no locking needed.
func (b *Bot) handleCallbackQuery(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	// Answer the callback to remove the loading state
	callback := tgbotapi.NewCallback(query.ID, "")
	b.tg.Request(callback)

	if strings.HasPrefix(query.Data, "perm:") {
		if !session.IsAuthenticated() {
			session.reply(MsgLoginRequired)
			return
		}
		b.captureHandler.HandlePermissionCallback(ctx, session, query)
	}
}

// handleAdminCommand handles /admin command with subcommands.
// Only the admin user can use this command (defense in depth check).
func (b *Bot) handleAdminCommand(session *UserSession, parts []string) {
	if session.userId != b.adminID {
		return // Silent drop for non-admin users
	}

	if len(parts) == 0 {
		session.reply(MsgAdminUsage)
		return
	}

	switch parts[0] {
	case "users":
		if len(parts) < 2 {
			session.reply(MsgAdminUsage)
			return
		}
		b.handleAdminUsersCommand(session, parts[1], parts[2:])
	default:
		session.reply(MsgAdminUsage)
	}
}

// handleAdminUsersCommand handles /admin users subcommands.
func (b *Bot) handleAdminUsersCommand(session *UserSession, action string, args []string) {
	switch action {
	case "add", "remove":
		if len(args) < 1 {
			if action == "add" {
				session.reply(MsgAdminUserAddUsage)
			} else {
				session.reply(MsgAdminUserRemoveUsage)
			}
			return
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			session.reply(MsgAdminUserInvalidID)
			return
		}
		if action == "add" {
			err = b.sessionStore.AddAllowedUser(userID, session.userId)
		} else {
			err = b.sessionStore.RemoveAllowedUser(userID)
		}
		if err != nil {
			session.replyWithError(err)
			return
		}
		if action == "add" {
			session.reply(MsgAdminUserAdded, userID)
		} else {
			session.reply(MsgAdminUserRemoved, userID)
		}

	case "list":
		users, err := b.sessionStore.GetAllowedUsers()
		if err != nil {
			session.replyWithError(err)
			return
		}
		if len(users) == 0 {
			session.reply(MsgAdminNoUsers)
			return
		}
		var sb strings.Builder
		sb.WriteString(MsgAdminAllowedUsers)
		for _, u := range users {
			sb.WriteString(fmt.Sprintf("• `%d` (ajouté le %s)\n", u.TelegramID, u.AddedAt.Format("2006-01-02")))
		}
		session._reply(sb.String(), false)

	default:
		session.reply(MsgAdminUsage)
	}
}
