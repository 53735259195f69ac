package bot

import (
	"context"
	"sync"

	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/pipeline"
	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

// storePermissions answers permission requests from the user's stored
// choices. Unanswered prompts count as not granted; the bot asks before
// acquiring.
type storePermissions struct {
	store  storage.SessionStore
	userId int64
}

func (p storePermissions) Request(_ context.Context, resource capture.Resource) (bool, error) {
	status, err := p.store.GetPermission(p.userId, string(resource))
	if err != nil {
		return false, err
	}
	return status == storage.PermissionGranted, nil
}

func (bs *BotState) newUserSession(userId int64) (*UserSession, error) {
	ctx, cancel := context.WithCancel(context.Background())
	session := UserSession{
		userId:   userId,
		sender:   bs.bot.tg,
		authFlow: NewAuthFlow(),
		inbox:    make(chan SessionMessage, 10), // Buffered to avoid blocking
		ctx:      ctx,
		cancel:   cancel,
	}

	viewport := bs.bot.defaultViewport
	stored, err := bs.bot.sessionStore.GetViewport(userId)
	if err != nil {
		log.Warn().Err(err).Int64("userId", userId).Msg("failed to get stored viewport")
	} else if stored != nil {
		viewport = capture.Viewport{Width: stored.Width, Height: stored.Height}
	}
	session.pipeline = pipeline.New(bs.bot.extractor, storePermissions{store: bs.bot.sessionStore, userId: userId}, viewport)

	storedSession, err := bs.bot.sessionStore.Get(userId)
	if err != nil {
		log.Warn().Err(err).Int64("userId", userId).Msg("failed to get stored session")
	} else if storedSession != nil {
		session.state = parseSessionState(storedSession.State)
		session.email = storedSession.Email
		// An interrupted login resumes at the OTP step.
		if session.state == SessionAwaitingOTP {
			session.authFlow.State = AuthStateAwaitingOTP
			session.authFlow.Email = storedSession.Email
		}
		log.Info().Int64("userId", userId).Str("state", session.state.String()).Msg("loaded session from database")
		return &session, nil
	}

	log.Info().Int64("userId", userId).Msg("new user session created (no auth)")
	return &session, nil
}

func (bs *BotState) getUserSession(userId int64) (*UserSession, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if session, ok := bs.sessions[userId]; ok {
		return session, nil
	}

	session, err := bs.newUserSession(userId)
	if err != nil {
		return nil, err
	}
	// Set the bot as the message handler and start the worker
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[userId] = session
	return session, nil
}

func (b *Bot) NewBotState() BotState {
	return BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// Shutdown stops all session workers gracefully.
func (bs *BotState) Shutdown() {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.mu.Unlock()

	// Stop all workers (outside the lock to avoid blocking)
	for _, session := range sessions {
		session.Stop()
	}
	log.Info().Int("count", len(sessions)).Msg("stopped all session workers")
}
