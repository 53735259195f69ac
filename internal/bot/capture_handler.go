package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/raine/telegram-cin-bot/internal/capture"
	"github.com/raine/telegram-cin-bot/internal/pipeline"
	"github.com/raine/telegram-cin-bot/internal/storage"
	"github.com/rs/zerolog/log"
)

// historyLimit is how many past extractions /history shows.
const historyLimit = 5

// CaptureHandler turns Telegram photos into pipeline acquisitions and runs
// submissions.
type CaptureHandler struct {
	tg    BotAPI
	store storage.SessionStore
}

// NewCaptureHandler creates a new capture handler.
func NewCaptureHandler(tg BotAPI, store storage.SessionStore) *CaptureHandler {
	return &CaptureHandler{tg: tg, store: store}
}

// HandleCameraCommand arms the camera: the next photo is cropped to the guide.
func (h *CaptureHandler) HandleCameraCommand(session *UserSession) {
	session.cameraArmed = true
	vp := session.pipeline.Viewport()
	frame := session.pipeline.GuideFrame()
	session.reply(MsgCameraArmed, vp.Width, vp.Height, frame.Y)
}

// HandlePhoto acquires the photo in message. A photo sent after /camera is a
// camera capture, any other photo is a gallery selection.
// Called from session worker - no locking needed.
func (h *CaptureHandler) HandlePhoto(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	var file telegramFile
	switch {
	case len(message.Photo) > 0:
		// Telegram lists sizes ascending; take the original resolution.
		largest := message.Photo[len(message.Photo)-1]
		file = telegramFile{getFileDirectURL: h.tg.GetFileDirectURL, fileID: largest.FileID}
	case message.Document != nil:
		if !strings.HasPrefix(message.Document.MimeType, "image/") {
			session.reply(MsgImageUnsupported)
			return
		}
		file = telegramFile{
			getFileDirectURL: h.tg.GetFileDirectURL,
			fileID:           message.Document.FileID,
			fileName:         message.Document.FileName,
		}
	default:
		return
	}

	source := capture.SourceGallery
	if session.cameraArmed {
		source = capture.SourceCamera
		session.cameraArmed = false
	}

	pending := &PendingPhoto{source: source, file: file}

	status, err := h.store.GetPermission(session.userId, string(source.Resource()))
	if err != nil {
		session.replyWithError(err)
		return
	}
	if status == storage.PermissionUnknown {
		session.pendingPhoto = pending
		h.promptPermission(session, source.Resource())
		return
	}

	h.acquire(ctx, session, pending)
}

func (h *CaptureHandler) promptPermission(session *UserSession, resource capture.Resource) {
	text := MsgPermissionPromptGallery
	if resource == capture.ResourceCamera {
		text = MsgPermissionPromptCamera
	}
	msg := tgbotapi.NewMessage(session.userId, text)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(BtnAllow, "perm:grant:"+string(resource)),
			tgbotapi.NewInlineKeyboardButtonData(BtnDeny, "perm:deny:"+string(resource)),
		),
	)
	session.replyWithMessage(msg)
}

// HandlePermissionCallback stores the answer to a permission prompt and
// resumes the photo that triggered it.
func (h *CaptureHandler) HandlePermissionCallback(ctx context.Context, session *UserSession, query *tgbotapi.CallbackQuery) {
	parts := strings.Split(query.Data, ":")
	if len(parts) != 3 {
		return
	}
	resource, ok := capture.ParseResource(parts[2])
	if !ok {
		return
	}

	status := storage.PermissionDenied
	if parts[1] == "grant" {
		status = storage.PermissionGranted
	}

	// Remove the inline keyboard
	if query.Message != nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(
			query.Message.Chat.ID,
			query.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
		)
		h.tg.Request(edit)
	}

	if err := h.store.SetPermission(session.userId, string(resource), status); err != nil {
		session.replyWithError(err)
		return
	}
	log.Info().Int64("userId", session.userId).Str("resource", string(resource)).Str("status", string(status)).Msg("permission answered")

	pending := session.pendingPhoto
	if pending == nil || pending.source.Resource() != resource {
		if status == storage.PermissionGranted {
			session.reply(MsgPermissionGranted)
		}
		return
	}
	session.pendingPhoto = nil

	// A denial goes through the pipeline too so it is reported the same way.
	h.acquire(ctx, session, pending)
}

func (h *CaptureHandler) acquire(ctx context.Context, session *UserSession, pending *PendingPhoto) {
	var (
		img *capture.CapturedImage
		err error
	)
	if pending.source == capture.SourceCamera {
		img, err = session.pipeline.CaptureFromCamera(ctx, pending.file)
	} else {
		img, err = session.pipeline.SelectFromGallery(ctx, pending.file)
	}
	if err != nil {
		h.replyAcquireError(session, err)
		return
	}

	filename := capture.DeriveFilename(img.Location())
	session.reply(MsgImageReady, img.Width(), img.Height(), escapeMarkdown(filename))
}

func (h *CaptureHandler) replyAcquireError(session *UserSession, err error) {
	var denied *capture.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		if denied.Resource == capture.ResourceCamera {
			session.reply(MsgPermissionDeniedCamera)
		} else {
			session.reply(MsgPermissionDeniedGallery)
		}
	case errors.Is(err, capture.ErrCropFailed):
		log.Error().Err(err).Int64("userId", session.userId).Msg("crop failed")
		session.reply(MsgCropFailed, escapeMarkdown(err.Error()))
	default:
		log.Error().Err(err).Int64("userId", session.userId).Msg("acquisition failed")
		session.reply(MsgCaptureFailed, escapeMarkdown(err.Error()))
	}
}

// HandleSendCommand submits the current image and shows the result.
func (h *CaptureHandler) HandleSendCommand(ctx context.Context, session *UserSession) {
	typingCtx, stopTyping := context.WithCancel(ctx)
	go session.startTypingLoop(typingCtx)
	result, err := session.pipeline.Submit(ctx)
	stopTyping()

	if err != nil {
		h.replySubmitError(session, err)
		return
	}

	if img := session.pipeline.Image(); img != nil {
		filename := capture.DeriveFilename(img.Location())
		if _, err := h.store.SaveExtraction(session.userId, img.Source().String(), filename, result); err != nil {
			log.Warn().Err(err).Int64("userId", session.userId).Msg("failed to save extraction history")
		}
	}

	h.replyResult(session, result)
}

func (h *CaptureHandler) replySubmitError(session *UserSession, err error) {
	var rejected *capture.UploadRejectedError
	switch {
	case errors.Is(err, capture.ErrNoImageSelected):
		session.reply(MsgNoImage)
	case errors.Is(err, pipeline.ErrSubmitInFlight):
		session.reply(MsgSubmitInFlight)
	case errors.As(err, &rejected):
		log.Warn().Int("status", rejected.Status).Str("message", rejected.Message).Int64("userId", session.userId).Msg("upload rejected")
		session.reply(MsgUploadRejected, rejected.Status, serverMessage(rejected.Message))
	default:
		log.Error().Err(err).Int64("userId", session.userId).Msg("upload failed")
		session.reply(MsgUploadFailed, escapeMarkdown(err.Error()))
	}
}

func (h *CaptureHandler) replyResult(session *UserSession, result capture.ExtractionResult) {
	if len(result) == 0 {
		session.reply(MsgResultEmpty)
		return
	}
	session._reply(MsgResultTitle+formatExtractionResult(result), false)
}

// HandleResultCommand re-displays the current result.
func (h *CaptureHandler) HandleResultCommand(session *UserSession) {
	result := session.pipeline.Result()
	if result == nil {
		session.reply(MsgNoResult)
		return
	}
	h.replyResult(session, result)
}

// HandleClearCommand discards the current image and result.
func (h *CaptureHandler) HandleClearCommand(session *UserSession) {
	session.pipeline.Discard()
	session.cameraArmed = false
	session.pendingPhoto = nil
	session.reply(MsgImageCleared)
}

// HandleHistoryCommand lists the user's most recent extractions, or deletes
// them all with "/history clear".
func (h *CaptureHandler) HandleHistoryCommand(session *UserSession, args []string) {
	if len(args) > 0 && strings.EqualFold(args[0], "clear") {
		count, err := h.store.DeleteExtractionsByUser(session.userId)
		if err != nil {
			session.replyWithError(err)
			return
		}
		session.reply(MsgHistoryCleared, count)
		return
	}

	list, err := h.store.GetExtractionsByUser(session.userId, historyLimit)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if len(list) == 0 {
		session.reply(MsgHistoryEmpty)
		return
	}

	var sb strings.Builder
	sb.WriteString(MsgHistoryTitle)
	for _, e := range list {
		sb.WriteString(fmt.Sprintf("\n_%s_ · %s · %s\n",
			e.CreatedAt.Format("2006-01-02 15:04"), e.Source, escapeMarkdown(e.Filename)))
		sb.WriteString(formatExtractionResult(e.Fields))
	}
	session._reply(sb.String(), false)
}

// HandleRevokeCommand forgets a stored permission answer.
func (h *CaptureHandler) HandleRevokeCommand(session *UserSession, args []string) {
	if len(args) != 1 {
		session.reply(MsgRevokeUsage)
		return
	}
	resource, ok := capture.ParseResource(args[0])
	if !ok {
		session.reply(MsgRevokeUsage)
		return
	}
	if err := h.store.RevokePermission(session.userId, string(resource)); err != nil {
		session.replyWithError(err)
		return
	}
	session.reply(MsgPermissionRevoked, string(resource))
}

// HandlePreviewCommand shows or sets the preview size used for guide crops.
func (h *CaptureHandler) HandlePreviewCommand(session *UserSession, args []string) {
	if len(args) == 0 {
		vp := session.pipeline.Viewport()
		session.reply(MsgPreviewCurrent, vp.Width, vp.Height)
		return
	}
	vp, ok := parseViewport(strings.Join(args, ""))
	if !ok {
		session.reply(MsgPreviewUsage)
		return
	}
	if err := h.store.SetViewport(session.userId, storage.Viewport{Width: vp.Width, Height: vp.Height}); err != nil {
		session.replyWithError(err)
		return
	}
	session.pipeline.SetViewport(vp)
	session.reply(MsgPreviewUpdated, vp.Width, vp.Height)
}
