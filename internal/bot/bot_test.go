package bot

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/cin"
	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testUserID  = int64(1)
	testAdminID = int64(99)
)

type botApiMock struct {
	mock.Mock

	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (m *botApiMock) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, msg)
		m.mu.Unlock()
	}
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *botApiMock) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *botApiMock) GetFileDirectURL(fileID string) (string, error) {
	args := m.Called(fileID)
	return args.String(0), args.Error(1)
}

// texts returns the text of every message sent so far.
func (m *botApiMock) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, msg := range m.sent {
		out[i] = msg.Text
	}
	return out
}

func (m *botApiMock) lastSent(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no message sent")
	return m.sent[len(m.sent)-1]
}

type authMock struct {
	mock.Mock
}

func (m *authMock) Login(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *authMock) Register(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *authMock) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	args := m.Called(ctx, email, otp)
	return args.String(0), args.Error(1)
}

func (m *authMock) ForgotPassword(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

type extractorMock struct {
	mock.Mock
}

func (m *extractorMock) Extract(ctx context.Context, payload capture.UploadPayload) (capture.ExtractionResult, error) {
	args := m.Called(ctx, payload)
	result, _ := args.Get(0).(capture.ExtractionResult)
	return result, args.Error(1)
}

type testEnv struct {
	tg        *botApiMock
	auth      *authMock
	extractor *extractorMock
	store     *storage.SQLiteStore
	bot       *Bot
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	key, err := storage.DeriveKey("test-passphrase")
	require.NoError(t, err)
	store, err := storage.NewSQLiteStore(":memory:", key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.AddAllowedUser(testUserID, testAdminID))

	env := &testEnv{
		tg:        new(botApiMock),
		auth:      new(authMock),
		extractor: new(extractorMock),
		store:     store,
	}
	env.tg.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	env.tg.On("Request", mock.Anything).Return(&tgbotapi.APIResponse{Ok: true}, nil).Maybe()

	env.bot = NewBot(env.tg, store, testAdminID, Services{
		Auth:            env.auth,
		Extractor:       env.extractor,
		DefaultViewport: capture.Viewport{Width: 411, Height: 731},
	})
	t.Cleanup(env.bot.Shutdown)
	return env
}

// login stores an authenticated session before the user's first message.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	require.NoError(t, e.store.Save(&storage.StoredSession{
		TelegramID: testUserID,
		Email:      "amine@example.tn",
		State:      SessionAuthenticated.String(),
	}))
}

func (e *testEnv) send(text string) {
	e.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makeMessage(testUserID, text)})
}

func makeMessage(userId int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: userId},
		Chat: &tgbotapi.Chat{ID: userId},
	}
}

func makePhotoMessage(userId int64) *tgbotapi.Message {
	msg := makeMessage(userId, "")
	msg.Photo = []tgbotapi.PhotoSize{
		{FileID: "small", Width: 90, Height: 67},
		{FileID: "large", Width: 400, Height: 300},
	}
	return msg
}

func makeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	return buf.Bytes()
}

// serveFile serves data as the Telegram file "large".
func (e *testEnv) serveFile(t *testing.T, data []byte) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(data)
	}))
	t.Cleanup(ts.Close)
	e.tg.On("GetFileDirectURL", "large").Return(ts.URL+"/photos/file_7.jpg", nil)
}

func permissionCallback(userId int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: userId},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 10, Chat: &tgbotapi.Chat{ID: userId}},
	}}
}

func TestLoginFlow(t *testing.T) {
	env := setup(t)
	env.auth.On("Login", mock.Anything, "amine@example.tn", "secret").Return("Code envoyé", nil).Once()
	env.auth.On("VerifyOTP", mock.Anything, "amine@example.tn", "000000").Return("", &cin.APIError{Status: 400, Message: "OTP invalide"}).Once()
	env.auth.On("VerifyOTP", mock.Anything, "amine@example.tn", "123456").Return("ok", nil).Once()

	env.send("/login")
	assert.Equal(t, MsgLoginPromptEmail, env.tg.lastSent(t).Text)

	env.send("amine@example.tn")
	assert.Equal(t, MsgLoginPromptPassword, env.tg.lastSent(t).Text)

	env.send("secret")
	assert.Equal(t, formatReplyText(MsgLoginOTPPrompt, "Code envoyé"), env.tg.lastSent(t).Text)

	stored, err := env.store.Get(testUserID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, SessionAwaitingOTP.String(), stored.State)

	// A wrong code keeps the user at the OTP step.
	env.send("000000")
	assert.Equal(t, formatReplyText(MsgOTPFailed, "OTP invalide"), env.tg.lastSent(t).Text)

	env.send("123456")
	assert.Equal(t, MsgLoginSuccess, env.tg.lastSent(t).Text)

	stored, err = env.store.Get(testUserID)
	require.NoError(t, err)
	assert.Equal(t, SessionAuthenticated.String(), stored.State)
	env.auth.AssertExpectations(t)
}

func TestLoginFailureUsesFallbackText(t *testing.T) {
	env := setup(t)
	env.auth.On("Login", mock.Anything, "a@b.tn", "pw").Return("", &cin.APIError{Status: 500}).Once()

	env.send("/login")
	env.send("a@b.tn")
	env.send("pw")

	assert.Equal(t, formatReplyText(MsgLoginFailed, MsgFallbackError), env.tg.lastSent(t).Text)

	// The flow is over; commands are routed normally again.
	env.send("/send")
	assert.Equal(t, MsgLoginRequired, env.tg.lastSent(t).Text)
}

func TestCaptureCommandsRequireLogin(t *testing.T) {
	env := setup(t)

	env.send("/camera")
	assert.Equal(t, MsgLoginRequired, env.tg.lastSent(t).Text)

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makePhotoMessage(testUserID)})
	assert.Equal(t, MsgLoginRequired, env.tg.lastSent(t).Text)
	env.tg.AssertNotCalled(t, "GetFileDirectURL", mock.Anything)
}

func TestGalleryPhotoToResult(t *testing.T) {
	env := setup(t)
	env.login(t)
	env.serveFile(t, makeJPEG(t, 40, 30))
	env.extractor.On("Extract", mock.Anything, mock.MatchedBy(func(p capture.UploadPayload) bool {
		return p.Filename == "file_7.jpg" && p.FieldName == "image" && p.ContentType == "image/jpeg"
	})).Return(capture.ExtractionResult{"nom": "BEN ALI", "numcin": "01234567"}, nil).Once()

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makePhotoMessage(testUserID)})

	prompt := env.tg.lastSent(t)
	assert.Equal(t, MsgPermissionPromptGallery, prompt.Text)
	keyboard, ok := prompt.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "perm:grant:gallery", *keyboard.InlineKeyboard[0][0].CallbackData)

	env.bot.handleUpdateSync(context.Background(), permissionCallback(testUserID, "perm:grant:gallery"))
	assert.Contains(t, env.tg.lastSent(t).Text, "40 × 30 px")

	status, err := env.store.GetPermission(testUserID, "gallery")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionGranted, status)

	env.send("/send")
	result := env.tg.lastSent(t).Text
	assert.Contains(t, result, "*nom* : BEN ALI")
	assert.Contains(t, result, "*numcin* : 01234567")

	history, err := env.store.GetExtractionsByUser(testUserID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "gallery", history[0].Source)
	assert.Equal(t, "file_7.jpg", history[0].Filename)
	assert.Equal(t, "BEN ALI", history[0].Fields["nom"])

	env.send("/result")
	assert.Equal(t, result, env.tg.lastSent(t).Text)

	env.send("/history clear")
	assert.Equal(t, formatReplyText(MsgHistoryCleared, int64(1)), env.tg.lastSent(t).Text)
	env.send("/history")
	assert.Equal(t, MsgHistoryEmpty, env.tg.lastSent(t).Text)
	env.extractor.AssertExpectations(t)
}

func TestCameraPhotoIsCropped(t *testing.T) {
	env := setup(t)
	env.login(t)
	require.NoError(t, env.store.SetPermission(testUserID, "camera", storage.PermissionGranted))
	env.serveFile(t, makeJPEG(t, 300, 400))

	env.send("/preview 100x200")
	assert.Equal(t, formatReplyText(MsgPreviewUpdated, 100.0, 200.0), env.tg.lastSent(t).Text)

	env.send("/camera")
	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makePhotoMessage(testUserID)})

	// 90% of a 100px preview maps to 270x170 in a 300px wide photo.
	assert.Contains(t, env.tg.lastSent(t).Text, "270 × 170 px")

	session, err := env.bot.state.getUserSession(testUserID)
	require.NoError(t, err)
	img := session.Pipeline().Image()
	require.NotNil(t, img)
	assert.Equal(t, capture.SourceCamera, img.Source())
}

func TestDeniedPermissionDoesNotAcquire(t *testing.T) {
	env := setup(t)
	env.login(t)
	env.serveFile(t, makeJPEG(t, 40, 30))

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makePhotoMessage(testUserID)})
	env.bot.handleUpdateSync(context.Background(), permissionCallback(testUserID, "perm:deny:gallery"))

	assert.Equal(t, MsgPermissionDeniedGallery, env.tg.lastSent(t).Text)
	env.tg.AssertNotCalled(t, "GetFileDirectURL", mock.Anything)

	// Stored denials apply to later photos without a new prompt.
	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makePhotoMessage(testUserID)})
	assert.Equal(t, MsgPermissionDeniedGallery, env.tg.lastSent(t).Text)

	env.send("/revoke gallery")
	status, err := env.store.GetPermission(testUserID, "gallery")
	require.NoError(t, err)
	assert.Equal(t, storage.PermissionUnknown, status)
}

func TestSendWithoutImage(t *testing.T) {
	env := setup(t)
	env.login(t)

	env.send("/send")

	assert.Equal(t, MsgNoImage, env.tg.lastSent(t).Text)
	env.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestSendRejected(t *testing.T) {
	env := setup(t)
	env.login(t)
	require.NoError(t, env.store.SetPermission(testUserID, "gallery", storage.PermissionGranted))
	env.serveFile(t, makeJPEG(t, 40, 30))
	env.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(nil, &capture.UploadRejectedError{Status: 400, Message: "Image illisible"}).Once()

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makePhotoMessage(testUserID)})
	env.send("/send")

	assert.Equal(t, formatReplyText(MsgUploadRejected, 400, " : Image illisible"), env.tg.lastSent(t).Text)

	history, err := env.store.GetExtractionsByUser(testUserID, 0)
	require.NoError(t, err)
	assert.Empty(t, history)

	env.send("/result")
	assert.Equal(t, MsgNoResult, env.tg.lastSent(t).Text)
}

func TestUnlistedUserIsIgnored(t *testing.T) {
	env := setup(t)

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makeMessage(42, "/login")})

	assert.Empty(t, env.tg.texts())
}

func TestAdminAddsUser(t *testing.T) {
	env := setup(t)

	env.bot.handleUpdateSync(context.Background(), tgbotapi.Update{Message: makeMessage(testAdminID, "/admin users add 42")})
	assert.Equal(t, formatReplyText(MsgAdminUserAdded, int64(42)), env.tg.lastSent(t).Text)

	allowed, err := env.store.IsUserAllowed(42)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Non-admins cannot use /admin.
	env.send("/admin users add 43")
	allowed, err = env.store.IsUserAllowed(43)
	require.NoError(t, err)
	assert.False(t, allowed)
}
