package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/medconn/medconnect/internal/telegram"
	"github.com/medconn/medconnect/records"
)

// showFamilyMenu lists the user's authorized family members and offers the
// authorization flow.
func (e *Engine) showFamilyMenu(ctx context.Context, chatID int64, user records.User) {
	family, err := e.db.Family.ListByUser(user.UserID)
	if err != nil {
		e.logger.Error("family_read_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}

	var b strings.Builder
	b.WriteString("👨‍👩‍👧‍👦 <b>Gestión Familiar</b>\n\n")
	if len(family) == 0 {
		b.WriteString("No tienes familiares autorizados aún.\n\n")
		b.WriteString("Un familiar autorizado puede acompañar tu cuidado según los permisos que le des.")
	} else {
		b.WriteString("✅ <b>Familiares autorizados:</b>\n")
		for _, f := range family {
			fmt.Fprintf(&b, "• %s (%s) — %s\n", f.Nombre, f.Parentesco, permissionLabel(f.Permisos))
		}
	}

	buttons := [][]telegram.InlineButton{
		{{Text: "👤 Autorizar Familiar", CallbackData: "authorize_family"}},
		{{Text: "🏠 Menú principal", CallbackData: "main_menu"}},
	}
	if err := e.msgr.SendMessageWithButtons(ctx, chatID, b.String(), buttons); err != nil {
		e.logger.Error("send_family_menu_error", "error", err)
	}
	e.lastReply = "menu_familiar"
}

func (e *Engine) startFamilyAuthorization(ctx context.Context, chatID int64, chatKey string) {
	e.sessions.Start(chatKey, StateFamilyName)
	e.send(ctx, chatID, "👤 <b>Autorizar familiar</b>\n\n📝 <b>Paso 1:</b> ¿Cómo se llama?")
}

// stepFamily advances the authorization flow one text answer at a time. The
// permissions step is button-only and handled by stepFamilyPermission.
func (e *Engine) stepFamily(ctx context.Context, chatID int64, chatKey string, user records.User, sess *Session, text string) {
	answer := strings.TrimSpace(text)
	switch sess.State {
	case StateFamilyName:
		if answer == "" {
			e.send(ctx, chatID, "📝 Escribe el nombre del familiar para continuar.")
			return
		}
		sess.Draft["nombre"] = answer
		sess.State = StateFamilyRelationship
		e.send(ctx, chatID, fmt.Sprintf("✅ Nombre: <b>%s</b>\n\n%s", answer, textFamilyStepRelationship))
	case StateFamilyRelationship:
		if answer == "" {
			e.send(ctx, chatID, textFamilyStepRelationship)
			return
		}
		sess.Draft["parentesco"] = answer
		sess.State = StateFamilyPhone
		e.send(ctx, chatID, fmt.Sprintf("✅ Parentesco: <b>%s</b>\n\n%s", answer, textFamilyStepPhone))
	case StateFamilyPhone:
		if answer == "" {
			e.send(ctx, chatID, textFamilyStepPhone)
			return
		}
		sess.Draft["telefono"] = answer
		sess.State = StateFamilyPermissions
		text := fmt.Sprintf(`✅ Teléfono: <b>%s</b>

📝 <b>Paso 4:</b> ¿Qué permisos quieres darle?

👀 <b>Solo Ver:</b> puede ver tu información médica
✏️ <b>Ver y Editar:</b> puede ver y agregar información
👑 <b>Control Total:</b> puede gestionar todo`, answer)
		if err := e.msgr.SendMessageWithButtons(ctx, chatID, text, permissionButtons()); err != nil {
			e.logger.Error("send_family_permissions_error", "error", err)
		}
		e.lastReply = "permisos_familiar"
	case StateFamilyPermissions:
		e.send(ctx, chatID, textFamilyUseButtons)
	case StateFamilyTelegramID:
		lower := strings.ToLower(answer)
		if lower == "saltar" || lower == "skip" {
			answer = ""
		}
		sess.Draft["telegram_id"] = answer
		e.persistFamiliar(ctx, chatID, chatKey, user, sess)
	}
}

// stepFamilyPermission consumes a perm_* button press during the
// authorization flow.
func (e *Engine) stepFamilyPermission(ctx context.Context, chatID int64, chatKey string, perm string) {
	sess := e.sessions.Get(chatKey)
	if sess == nil || sess.State != StateFamilyPermissions {
		e.send(ctx, chatID, textFallback)
		return
	}
	switch perm {
	case records.PermRead, records.PermWrite, records.PermAdmin:
	default:
		e.send(ctx, chatID, textFamilyUseButtons)
		return
	}
	sess.Draft["permisos"] = perm
	sess.State = StateFamilyTelegramID
	e.send(ctx, chatID, fmt.Sprintf("✅ Permisos: <b>%s</b>\n\n%s", permissionLabel(perm), textFamilyStepTelegram))
}

func (e *Engine) persistFamiliar(ctx context.Context, chatID int64, chatKey string, user records.User, sess *Session) {
	created, err := e.db.Family.Create(records.FamilyMember{
		UserID:     user.UserID,
		Nombre:     sess.Draft["nombre"],
		Parentesco: sess.Draft["parentesco"],
		Telefono:   sess.Draft["telefono"],
		TelegramID: sess.Draft["telegram_id"],
		Permisos:   sess.Draft["permisos"],
	})
	if err != nil {
		e.logger.Error("persist_familiar_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		e.sessions.End(chatKey)
		return
	}
	e.sessions.End(chatKey)

	notif := "No"
	if created.Notificacion == "true" {
		notif = "Sí"
	}
	e.send(ctx, chatID, fmt.Sprintf(`✅ <b>Familiar autorizado</b>

👤 Nombre: %s
👨‍👩‍👧‍👦 Parentesco: %s
📞 Teléfono: %s
🔑 Permisos: %s
🔔 Recibirá notificaciones: %s`,
		created.Nombre, created.Parentesco, created.Telefono,
		permissionLabel(created.Permisos), notif))
	e.showFamilyMenu(ctx, chatID, user)
}

func permissionLabel(perm string) string {
	switch perm {
	case records.PermWrite:
		return "Ver y Editar"
	case records.PermAdmin:
		return "Control Total"
	default:
		return "Solo Ver"
	}
}
