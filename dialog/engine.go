package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/medconn/medconnect/identity"
	"github.com/medconn/medconnect/ingest"
	"github.com/medconn/medconnect/internal/telegram"
	"github.com/medconn/medconnect/records"
)

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageWithButtons(ctx context.Context, chatID int64, text string, buttons [][]telegram.InlineButton) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
	SendDocument(ctx context.Context, chatID int64, filePath string, filename string, caption string) error
}

// Ingestor stages attachments for in-flight drafts.
type Ingestor interface {
	Ingest(ctx context.Context, userID, fileID, originalName string, declaredSize int64, mediaKind string) (ingest.Attachment, error)
	Staged(userID string) []ingest.Attachment
	Drain(userID string) []ingest.Attachment
	Discard(userID string)
	LocalPath(fileURL string) (string, error)
}

type Options struct {
	Messenger Messenger
	Resolver  *identity.Resolver
	DB        *records.DB
	Ingestor  Ingestor
	Router    *Router
	Sessions  *Sessions
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine processes one update at a time: resolve the sender, classify the
// text, advance the dialogue state machine, reply.
type Engine struct {
	msgr     Messenger
	resolver *identity.Resolver
	db       *records.DB
	ingestor Ingestor
	router   *Router
	sessions *Sessions
	logger   *slog.Logger
	now      func() time.Time

	// lastReply is only read by the single processing loop, for the
	// interaction log.
	lastReply string
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	if opts.Ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if opts.Router == nil {
		opts.Router = NewRouter(nil)
	}
	if opts.Sessions == nil {
		opts.Sessions = NewSessions()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		msgr:     opts.Messenger,
		resolver: opts.Resolver,
		db:       opts.DB,
		ingestor: opts.Ingestor,
		router:   opts.Router,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		now:      opts.Now,
	}, nil
}

// HandleUpdate is the per-update isolation boundary: a panic or error while
// handling one update is logged, apologized for, and must not stop the loop.
func (e *Engine) HandleUpdate(ctx context.Context, upd telegram.Update) {
	var chatID int64
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("update_panic",
				"update_id", upd.UpdateID, "panic", fmt.Sprint(r))
			if chatID != 0 {
				e.send(ctx, chatID, textApology)
			}
		}
	}()

	switch {
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.Message != nil && cb.Message.Chat != nil {
			chatID = cb.Message.Chat.ID
		}
		e.handleCallback(ctx, chatID, cb)
	default:
		msg := upd.Msg()
		if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
			return
		}
		chatID = msg.Chat.ID
		e.handleMessage(ctx, msg)
	}
}

func (e *Engine) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	chatKey := strconv.FormatInt(msg.From.ID, 10)

	user, err := e.resolver.ResolveOrCreate(chatKey, msg.From.FirstName, msg.From.LastName)
	if err != nil {
		e.logger.Error("resolve_user_error", "chat_key", chatKey, "error", err)
		e.send(ctx, chatID, textApology)
		return
	}

	if msg.Document != nil || len(msg.Photo) > 0 {
		e.handleAttachment(ctx, chatID, chatKey, user, msg)
		e.logInteraction(user, msg.From.Username, "[archivo]", "attachment")
		return
	}

	text := msg.TextOrCaption()
	if text == "" {
		return
	}

	intent := e.router.Classify(e.sessions.Get(chatKey), text)
	e.logger.Info("message_classified",
		"chat_key", chatKey, "intent", intent.Kind.String(), "state", e.stateName(chatKey))

	switch intent.Kind {
	case IntentExplicitCommand:
		e.handleCommand(ctx, chatID, chatKey, user, intent)
	case IntentContextualReply:
		e.handleContextual(ctx, chatID, chatKey, user, text)
	default:
		if e.needsOnboarding(user) {
			e.sessions.Start(chatKey, StateOnboardingName)
			e.send(ctx, chatID, textOnboardingWelcome)
		} else {
			switch intent.Kind {
			case IntentMenuKeyword:
				e.handleMenuKeyword(ctx, chatID, chatKey, user, intent.Keyword)
			case IntentStructuredData:
				e.handleStructuredData(ctx, chatID, chatKey, user, text, intent.Fields)
			default:
				e.send(ctx, chatID, textFallback)
			}
		}
	}

	e.logInteraction(user, msg.From.Username, text, intent.Kind.String())
}

// needsOnboarding reports whether the row is a bare placeholder that has
// never completed registration.
func (e *Engine) needsOnboarding(user records.User) bool {
	return user.Synthetic() && user.Edad == "" && user.Telefono == ""
}

func (e *Engine) handleCommand(ctx context.Context, chatID int64, chatKey string, user records.User, intent Intent) {
	switch intent.Command {
	case "start", "menu", "help", "ayuda":
		e.ingestor.Discard(user.UserID)
		e.sessions.End(chatKey)
		if e.needsOnboarding(user) {
			e.sessions.Start(chatKey, StateOnboardingName)
			e.send(ctx, chatID, textOnboardingWelcome)
			return
		}
		e.showMainMenu(ctx, chatID, user)
	case "cancelar", "cancel":
		e.cancelFlow(ctx, chatID, chatKey, user)
	case "vincular":
		e.handleVincular(ctx, chatID, chatKey, intent.Args)
	default:
		e.send(ctx, chatID, textFallback)
	}
}

func (e *Engine) handleVincular(ctx context.Context, chatID int64, chatKey string, args []string) {
	if len(args) != 1 {
		e.send(ctx, chatID, textVincularUsage)
		return
	}
	email := args[0]
	if err := ValidEmail(email); err != nil {
		e.send(ctx, chatID, textVincularEmailUnknown)
		return
	}
	user, err := e.resolver.LinkByEmail(chatKey, email)
	switch {
	case errors.Is(err, identity.ErrEmailNotFound):
		e.send(ctx, chatID, textVincularEmailUnknown)
	case errors.Is(err, identity.ErrEmailAlreadyLinked):
		e.send(ctx, chatID, textVincularEmailTaken)
	case errors.Is(err, identity.ErrChatAlreadyLinked):
		e.send(ctx, chatID, textVincularChatTaken)
	case err != nil:
		e.logger.Error("link_account_error", "chat_key", chatKey, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
	default:
		e.send(ctx, chatID, fmt.Sprintf(
			"✅ <b>Cuenta vinculada</b>\n\nHola %s, desde ahora tus registros quedan en tu cuenta de MedConnect.",
			user.DisplayName()))
	}
}

func (e *Engine) handleMenuKeyword(ctx context.Context, chatID int64, chatKey string, user records.User, keyword string) {
	switch keyword {
	case "greeting", "menu":
		e.showMainMenu(ctx, chatID, user)
	case "farewell":
		e.send(ctx, chatID, textFarewell)
	case "thanks":
		e.send(ctx, chatID, textThanks)
	case "history":
		e.showHistory(ctx, chatID, user)
	case "familia":
		e.showFamilyMenu(ctx, chatID, user)
	case "register":
		e.send(ctx, chatID, textConsultaFormat)
		e.sessions.Start(chatKey, StateAwaitConsulta)
	case "consulta":
		e.send(ctx, chatID, textConsultaFormat)
		e.sessions.Start(chatKey, StateAwaitConsulta)
	case "medicamento":
		e.send(ctx, chatID, textMedicamentoFormat)
		e.sessions.Start(chatKey, StateAwaitMedicamento)
	case "examen":
		e.send(ctx, chatID, textExamenFormat)
		e.sessions.Start(chatKey, StateAwaitExamen)
	default:
		e.send(ctx, chatID, textFallback)
	}
}

func (e *Engine) handleCallback(ctx context.Context, chatID int64, cb *telegram.CallbackQuery) {
	if err := e.msgr.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		e.logger.Warn("answer_callback_error", "error", err)
	}
	if chatID == 0 || cb.From == nil {
		return
	}
	chatKey := strconv.FormatInt(cb.From.ID, 10)
	user, err := e.resolver.ResolveOrCreate(chatKey, cb.From.FirstName, cb.From.LastName)
	if err != nil {
		e.logger.Error("resolve_user_error", "chat_key", chatKey, "error", err)
		return
	}

	data := cb.Data
	switch {
	case data == "main_menu":
		e.ingestor.Discard(user.UserID)
		e.sessions.End(chatKey)
		e.showMainMenu(ctx, chatID, user)
	case data == "reg_consulta":
		e.sessions.Start(chatKey, StateAwaitConsulta)
		e.send(ctx, chatID, textConsultaFormat)
	case data == "reg_consulta_futura":
		e.sessions.Start(chatKey, StateAwaitConsultaFutura)
		e.send(ctx, chatID, textConsultaFuturaFormat)
	case data == "reg_medicamento":
		e.sessions.Start(chatKey, StateAwaitMedicamento)
		e.send(ctx, chatID, textMedicamentoFormat)
	case data == "reg_examen":
		e.sessions.Start(chatKey, StateAwaitExamen)
		e.send(ctx, chatID, textExamenFormat)
	case data == "ver_historial":
		e.showHistory(ctx, chatID, user)
	case data == "ver_familiares":
		e.showFamilyMenu(ctx, chatID, user)
	case data == "authorize_family":
		e.startFamilyAuthorization(ctx, chatID, chatKey)
	case strings.HasPrefix(data, "perm_"):
		e.stepFamilyPermission(ctx, chatID, chatKey, strings.TrimPrefix(data, "perm_"))
	case strings.HasPrefix(data, "examadd:"):
		e.startExamAddFiles(ctx, chatID, chatKey, user, strings.TrimPrefix(data, "examadd:"))
	case strings.HasPrefix(data, "examfiles:"):
		e.showExamFiles(ctx, chatID, user, strings.TrimPrefix(data, "examfiles:"))
	case strings.HasPrefix(data, "examfile:"):
		e.sendExamFile(ctx, chatID, user, strings.TrimPrefix(data, "examfile:"))
	default:
		e.logger.Warn("unknown_callback", "data", data)
	}
	e.logInteraction(user, cb.From.Username, data, "callback")
}

func (e *Engine) showMainMenu(ctx context.Context, chatID int64, user records.User) {
	text := mainMenuText(user.Nombre)
	if err := e.msgr.SendMessageWithButtons(ctx, chatID, text, mainMenuButtons()); err != nil {
		e.logger.Error("send_menu_error", "error", err)
	}
	e.lastReply = text
}

func (e *Engine) cancelFlow(ctx context.Context, chatID int64, chatKey string, user records.User) {
	e.ingestor.Discard(user.UserID)
	e.sessions.End(chatKey)
	e.send(ctx, chatID, textCancelled)
}

// send delivers a plain text reply; delivery failures are logged, the
// affected reply is dropped.
func (e *Engine) send(ctx context.Context, chatID int64, text string) {
	if err := e.msgr.SendMessage(ctx, chatID, text); err != nil {
		e.logger.Error("send_message_error", "chat_id", chatID, "error", err)
	}
	e.lastReply = text
}

func (e *Engine) logInteraction(user records.User, username, message, actionType string) {
	response := truncateRunes(e.lastReply, 120)
	e.db.Log.Record(records.Interaction{
		UserID:     user.UserID,
		Username:   username,
		Message:    message,
		Response:   response,
		ActionType: actionType,
	})
	e.lastReply = ""
}

// truncateRunes cuts on a rune boundary; replies are emoji-laden Spanish,
// so a byte cut could split a sequence mid-rune.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func (e *Engine) stateName(chatKey string) string {
	if sess := e.sessions.Get(chatKey); sess != nil {
		return sess.State.String()
	}
	return "none"
}
