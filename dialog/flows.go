package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/medconn/medconnect/identity"
	"github.com/medconn/medconnect/ingest"
	"github.com/medconn/medconnect/internal/telegram"
	"github.com/medconn/medconnect/records"
)

func isCancelToken(lower string) bool {
	switch lower {
	case "cancelar", "cancel", "salir":
		return true
	}
	return false
}

func isMenuToken(lower string) bool {
	switch lower {
	case "menu", "menú", "inicio":
		return true
	}
	return false
}

// handleContextual advances the active session with one text answer. Cancel
// and menu tokens abandon the draft from any state.
func (e *Engine) handleContextual(ctx context.Context, chatID int64, chatKey string, user records.User, text string) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if isCancelToken(lower) {
		e.cancelFlow(ctx, chatID, chatKey, user)
		return
	}
	if isMenuToken(lower) {
		e.ingestor.Discard(user.UserID)
		e.sessions.End(chatKey)
		e.showMainMenu(ctx, chatID, user)
		return
	}

	sess := e.sessions.Get(chatKey)
	switch sess.State {
	case StateOnboardingName, StateOnboardingAge, StateOnboardingPhone, StateOnboardingEmail:
		e.stepOnboarding(ctx, chatID, chatKey, user, sess, text)
	case StateAwaitConsulta:
		e.stepConsulta(ctx, chatID, chatKey, user, text)
	case StateAwaitConsultaFutura:
		e.stepConsultaFutura(ctx, chatID, chatKey, user, text)
	case StateAwaitMedicamento:
		e.stepMedicamento(ctx, chatID, chatKey, user, text)
	case StateAwaitExamen:
		e.stepExamen(ctx, chatID, chatKey, sess, text)
	case StateExamAttachments:
		e.stepExamAttachments(ctx, chatID, chatKey, user, sess, lower)
	case StateExamAddFiles:
		e.stepExamAddFiles(ctx, chatID, chatKey, user, sess, lower)
	case StateFamilyName, StateFamilyRelationship, StateFamilyPhone,
		StateFamilyPermissions, StateFamilyTelegramID:
		e.stepFamily(ctx, chatID, chatKey, user, sess, text)
	default:
		e.sessions.End(chatKey)
		e.send(ctx, chatID, textFallback)
	}
}

func (e *Engine) stepOnboarding(ctx context.Context, chatID int64, chatKey string, user records.User, sess *Session, text string) {
	answer := strings.TrimSpace(text)
	switch sess.State {
	case StateOnboardingName:
		if answer == "" {
			e.send(ctx, chatID, "📝 Escribe tu nombre completo para continuar.")
			return
		}
		nombre, apellido, _ := strings.Cut(answer, " ")
		sess.Draft["nombre"] = nombre
		sess.Draft["apellido"] = strings.TrimSpace(apellido)
		sess.State = StateOnboardingAge
		e.send(ctx, chatID, fmt.Sprintf("✅ Nombre: <b>%s</b>\n\n📝 <b>Paso 2:</b> ¿Cuántos años tienes?", answer))
	case StateOnboardingAge:
		if err := ValidAge(answer); err != nil {
			e.sendRejection(ctx, chatID, err)
			return
		}
		sess.Draft["edad"] = answer
		sess.State = StateOnboardingPhone
		e.send(ctx, chatID, "✅ Edad registrada.\n\n📝 <b>Paso 3:</b> ¿Cuál es tu número de teléfono?\n(Ejemplo: +56912345678)")
	case StateOnboardingPhone:
		if answer == "" {
			e.send(ctx, chatID, "📝 Escribe tu número de teléfono para continuar.")
			return
		}
		sess.Draft["telefono"] = answer
		sess.State = StateOnboardingEmail
		e.send(ctx, chatID, "✅ Teléfono registrado.\n\n📝 <b>Paso 4:</b> ¿Cuál es tu correo electrónico?")
	case StateOnboardingEmail:
		if err := ValidEmail(answer); err != nil {
			e.sendRejection(ctx, chatID, err)
			return
		}
		sess.Draft["email"] = strings.ToLower(answer)
		e.finishOnboarding(ctx, chatID, chatKey, user, sess)
	}
}

// finishOnboarding persists the collected profile. If the email belongs to a
// dashboard-registered row, the chat is linked to it instead and the
// placeholder disappears.
func (e *Engine) finishOnboarding(ctx context.Context, chatID int64, chatKey string, user records.User, sess *Session) {
	defer e.sessions.End(chatKey)

	email := sess.Draft["email"]
	if linked, err := e.resolver.LinkByEmail(chatKey, email); err == nil {
		e.send(ctx, chatID, fmt.Sprintf(
			"🔗 Ese correo ya estaba registrado en la plataforma: vinculé tu Telegram a la cuenta de <b>%s</b>.",
			linked.DisplayName()))
		e.showMainMenu(ctx, chatID, linked)
		return
	} else if !errors.Is(err, identity.ErrEmailNotFound) {
		if errors.Is(err, identity.ErrEmailAlreadyLinked) {
			e.send(ctx, chatID, textVincularEmailTaken)
			email = ""
		} else {
			e.logger.Error("onboarding_link_error", "chat_key", chatKey, "error", err)
			e.send(ctx, chatID, textStoreRetryLater)
			return
		}
	}

	updates := map[string]string{
		"nombre":   sess.Draft["nombre"],
		"apellido": sess.Draft["apellido"],
		"edad":     sess.Draft["edad"],
		"telefono": sess.Draft["telefono"],
		"email":    email,
	}
	for field, value := range updates {
		if value == "" {
			continue
		}
		if err := e.db.Users.UpdateField(user.UserID, field, value); err != nil {
			e.logger.Error("onboarding_save_error", "user_id", user.UserID, "field", field, "error", err)
			e.send(ctx, chatID, textStoreRetryLater)
			return
		}
	}
	user.Nombre = sess.Draft["nombre"]
	e.send(ctx, chatID, fmt.Sprintf("🎉 ¡Listo, %s! Tu registro está completo.", sess.Draft["nombre"]))
	e.showMainMenu(ctx, chatID, user)
}

func (e *Engine) stepConsulta(ctx context.Context, chatID int64, chatKey string, user records.User, text string) {
	fields, err := ParseDelimited(text, 6, map[int]Validator{0: ValidDate})
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	e.persistConsulta(ctx, chatID, user, map[string]string{
		"fecha":        fields[0],
		"especialidad": fields[1],
		"medico":       fields[2],
		"centro":       fields[3],
		"diagnostico":  fields[4],
		"tratamiento":  fields[5],
	})
	e.sessions.End(chatKey)
}

func (e *Engine) persistConsulta(ctx context.Context, chatID int64, user records.User, f map[string]string) {
	date, err := NormalizeDate(f["fecha"], e.now())
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	_, err = e.db.Consultations.Create(records.Consultation{
		PatientID: user.UserID,
		Doctor:    f["medico"],
		Specialty: f["especialidad"],
		Date:      date,
		Diagnosis: f["diagnostico"],
		Treatment: f["tratamiento"],
		Notes:     "Centro: " + f["centro"],
		Status:    records.StatusCompleted,
	})
	if err != nil {
		e.logger.Error("persist_consulta_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}
	e.send(ctx, chatID, confirmConsulta(f))
}

func (e *Engine) stepConsultaFutura(ctx context.Context, chatID int64, chatKey string, user records.User, text string) {
	fields, err := ParseDelimited(text, 6, map[int]Validator{0: ValidDate, 1: ValidTime})
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	e.persistConsultaFutura(ctx, chatID, user, map[string]string{
		"fecha":        fields[0],
		"hora":         fields[1],
		"especialidad": fields[2],
		"medico":       fields[3],
		"centro":       fields[4],
		"motivo":       fields[5],
	})
	e.sessions.End(chatKey)
}

func (e *Engine) persistConsultaFutura(ctx context.Context, chatID int64, user records.User, f map[string]string) {
	date, err := NormalizeDate(f["fecha"], e.now())
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	created, err := e.db.Consultations.Create(records.Consultation{
		PatientID: user.UserID,
		Doctor:    f["medico"],
		Specialty: f["especialidad"],
		Date:      date,
		Diagnosis: f["motivo"],
		Treatment: "Hora: " + f["hora"],
		Notes:     "Centro: " + f["centro"],
		Status:    records.StatusScheduled,
	})
	if err != nil {
		e.logger.Error("persist_consulta_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}
	// Reminder delivery is out of scope; the intent is logged for a future
	// scheduler.
	e.logger.Info("reminder_intent_logged",
		"user_id", user.UserID,
		"consultation_id", created.ID,
		"date", date,
		"time", f["hora"])
	e.send(ctx, chatID, confirmConsultaFutura(f))
}

func (e *Engine) stepMedicamento(ctx context.Context, chatID int64, chatKey string, user records.User, text string) {
	fields, err := ParseDelimited(text, 5, map[int]Validator{4: ValidDate})
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	e.persistMedicamento(ctx, chatID, user, map[string]string{
		"nombre":       fields[0],
		"dosis":        fields[1],
		"frecuencia":   fields[2],
		"medico":       fields[3],
		"fecha_inicio": fields[4],
	})
	e.sessions.End(chatKey)
}

func (e *Engine) persistMedicamento(ctx context.Context, chatID int64, user records.User, f map[string]string) {
	start, err := NormalizeDate(f["fecha_inicio"], e.now())
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	_, err = e.db.Medications.Create(records.Medication{
		PatientID:    user.UserID,
		Medication:   f["nombre"],
		Dosage:       f["dosis"],
		Frequency:    f["frecuencia"],
		StartDate:    start,
		PrescribedBy: f["medico"],
		Status:       records.StatusActive,
	})
	if err != nil {
		e.logger.Error("persist_medicamento_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}
	e.send(ctx, chatID, confirmMedicamento(f))
}

// stepExamen parses the exam fields and enters the attachment sub-loop; the
// record is only persisted on an explicit done or pending signal.
func (e *Engine) stepExamen(ctx context.Context, chatID int64, chatKey string, sess *Session, text string) {
	fields, err := ParseDelimited(text, 5, map[int]Validator{1: ValidDate})
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	sess.Draft["tipo"] = fields[0]
	sess.Draft["fecha"] = fields[1]
	sess.Draft["laboratorio"] = fields[2]
	sess.Draft["resultados"] = fields[3]
	sess.Draft["medico"] = fields[4]
	sess.State = StateExamAttachments
	e.send(ctx, chatID, textExamAttachments)
}

func (e *Engine) stepExamAttachments(ctx context.Context, chatID int64, chatKey string, user records.User, sess *Session, lower string) {
	switch lower {
	case "listo", "done":
		e.persistExamen(ctx, chatID, user, sess.Draft, records.StatusRegistered)
		e.sessions.End(chatKey)
	case "pendiente":
		// The exam has not happened yet; anything staged meanwhile is
		// dropped, files belong to performed exams only.
		e.ingestor.Discard(user.UserID)
		e.persistExamen(ctx, chatID, user, sess.Draft, records.StatusPending)
		e.sessions.End(chatKey)
	default:
		e.send(ctx, chatID, "📎 Envía un archivo, o escribe <b>listo</b> para guardar, <b>pendiente</b> si aún no lo realizas, o 'cancelar' para salir.")
	}
}

func (e *Engine) persistExamen(ctx context.Context, chatID int64, user records.User, f map[string]string, status string) {
	date, err := NormalizeDate(f["fecha"], e.now())
	if err != nil {
		e.sendRejection(ctx, chatID, err)
		return
	}
	staged := e.ingestor.Drain(user.UserID)
	urls := make([]string, 0, len(staged))
	for _, att := range staged {
		urls = append(urls, att.FileURL)
	}
	_, err = e.db.Exams.Create(records.Exam{
		PatientID: user.UserID,
		ExamType:  f["tipo"],
		Date:      date,
		Results:   f["resultados"],
		Lab:       f["laboratorio"],
		Doctor:    f["medico"],
		FileURLs:  strings.Join(urls, ","),
		Status:    status,
	})
	if err != nil {
		e.logger.Error("persist_examen_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}
	e.send(ctx, chatID, confirmExamen(f, len(urls)))
}

// startExamAddFiles opens the attachment sub-loop against an exam that was
// already persisted, so its file list can keep growing.
func (e *Engine) startExamAddFiles(ctx context.Context, chatID int64, chatKey string, user records.User, examID string) {
	exam, found, err := e.db.Exams.Get(examID)
	if err != nil {
		e.logger.Error("exam_read_error", "exam_id", examID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}
	if !found || exam.PatientID != user.UserID {
		e.send(ctx, chatID, "❌ No encontré ese examen.")
		return
	}
	sess := e.sessions.Start(chatKey, StateExamAddFiles)
	sess.Draft["exam_id"] = exam.ID
	sess.Draft["tipo"] = exam.ExamType
	e.send(ctx, chatID, textExamAddFiles)
}

func (e *Engine) stepExamAddFiles(ctx context.Context, chatID int64, chatKey string, user records.User, sess *Session, lower string) {
	switch lower {
	case "listo", "done":
		e.appendExamFiles(ctx, chatID, user, sess.Draft["exam_id"])
		e.sessions.End(chatKey)
	default:
		e.send(ctx, chatID, "📎 Envía un archivo, o escribe <b>listo</b> cuando termines, o 'cancelar' para salir.")
	}
}

func (e *Engine) appendExamFiles(ctx context.Context, chatID int64, user records.User, examID string) {
	staged := e.ingestor.Drain(user.UserID)
	if len(staged) == 0 {
		e.send(ctx, chatID, "📎 No recibí archivos nuevos. El examen queda igual.")
		return
	}
	urls := make([]string, 0, len(staged))
	for _, att := range staged {
		urls = append(urls, att.FileURL)
	}
	if err := e.db.Exams.AppendFileURLs(examID, urls); err != nil {
		e.logger.Error("append_exam_files_error", "exam_id", examID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}

	exam, found, err := e.db.Exams.Get(examID)
	if err != nil || !found {
		e.logger.Error("exam_read_error", "exam_id", examID, "error", err)
		e.send(ctx, chatID, textStoreRetryLater)
		return
	}
	// A pending exam that now carries result files has been performed.
	if exam.Status == records.StatusPending {
		if err := e.db.Exams.UpdateStatus(examID, records.StatusRegistered); err != nil {
			e.logger.Error("exam_status_update_error", "exam_id", examID, "error", err)
		}
	}
	e.send(ctx, chatID, fmt.Sprintf("✅ Agregué %d archivo(s) al examen <b>%s</b>. Ahora tiene %d en total.",
		len(urls), exam.ExamType, len(exam.URLList())))
}

// handleAttachment ingests a document or photo sent mid attachment sub-loop;
// anywhere else the file is acknowledged but not stored.
func (e *Engine) handleAttachment(ctx context.Context, chatID int64, chatKey string, user records.User, msg *telegram.Message) {
	sess := e.sessions.Get(chatKey)
	if sess == nil || (sess.State != StateExamAttachments && sess.State != StateExamAddFiles) {
		e.send(ctx, chatID, textFileOutsideFlow)
		return
	}

	var fileID, name, kind string
	var size int64
	switch {
	case msg.Document != nil:
		fileID = msg.Document.FileID
		name = msg.Document.FileName
		size = msg.Document.FileSize
		kind = "document"
		if name == "" {
			name = fmt.Sprintf("documento_%s.pdf", e.now().Format("20060102_150405"))
		}
	default:
		// Telegram sends several sizes of the same photo; the last one is
		// the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		fileID = photo.FileID
		size = photo.FileSize
		kind = "photo"
		name = fmt.Sprintf("foto_%s.jpg", e.now().Format("20060102_150405"))
	}

	_, err := e.ingestor.Ingest(ctx, user.UserID, fileID, name, size, kind)
	if err != nil {
		var rej *ingest.Rejected
		if errors.As(err, &rej) {
			e.send(ctx, chatID, "❌ "+rej.Reason)
			return
		}
		e.logger.Error("ingest_error", "user_id", user.UserID, "error", err)
		e.send(ctx, chatID, "❌ No pude descargar el archivo. Intenta de nuevo.")
		return
	}
	total := len(e.ingestor.Staged(user.UserID))
	e.send(ctx, chatID, fmt.Sprintf("📎 Archivo recibido (%d en total). Envía otro o escribe <b>listo</b> para guardar.", total))
}

// handleStructuredData lets a user skip the menu: comma-delimited text with
// a recognizable shape is routed to the matching flow directly.
func (e *Engine) handleStructuredData(ctx context.Context, chatID int64, chatKey string, user records.User, text string, fieldCount int) {
	parts := strings.Split(text, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	switch fieldCount {
	case 6:
		if ValidDate(parts[0]) != nil {
			e.sendRejection(ctx, chatID, ValidDate(parts[0]))
			return
		}
		if ValidTime(parts[1]) == nil {
			e.stepConsultaFutura(ctx, chatID, chatKey, user, text)
		} else {
			e.stepConsulta(ctx, chatID, chatKey, user, text)
		}
	case 5:
		switch {
		case ValidDate(parts[1]) == nil:
			sess := e.sessions.Start(chatKey, StateAwaitExamen)
			e.stepExamen(ctx, chatID, chatKey, sess, text)
		case ValidDate(parts[4]) == nil:
			e.stepMedicamento(ctx, chatID, chatKey, user, text)
		default:
			e.send(ctx, chatID, textFallback)
		}
	default:
		e.send(ctx, chatID, textFallback)
	}
}

func (e *Engine) sendRejection(ctx context.Context, chatID int64, err error) {
	var rej *Rejection
	if errors.As(err, &rej) {
		e.send(ctx, chatID, "❌ "+rej.Reason)
		return
	}
	e.send(ctx, chatID, textApology)
}
