package dialog

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/medconn/medconnect/internal/telegram"
	"github.com/medconn/medconnect/records"
)

const historyTail = 3

// showHistory renders the user's medical summary: counts per kind plus the
// most recent entries, with download buttons for exams carrying files.
func (e *Engine) showHistory(ctx context.Context, chatID int64, user records.User) {
	consults, err := e.db.Consultations.ListByPatient(user.UserID)
	if err != nil {
		e.historyError(ctx, chatID, user.UserID, err)
		return
	}
	meds, err := e.db.Medications.ListByPatient(user.UserID)
	if err != nil {
		e.historyError(ctx, chatID, user.UserID, err)
		return
	}
	exams, err := e.db.Exams.ListByPatient(user.UserID)
	if err != nil {
		e.historyError(ctx, chatID, user.UserID, err)
		return
	}

	activeMeds := 0
	for _, m := range meds {
		if m.Status == records.StatusActive {
			activeMeds++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Tu historial médico</b>\n\n")
	fmt.Fprintf(&b, "🩺 Consultas: %d\n💊 Medicamentos activos: %d\n🩻 Exámenes: %d\n",
		len(consults), activeMeds, len(exams))

	if len(consults) > 0 {
		b.WriteString("\n🩺 <b>Últimas consultas</b>\n")
		for _, c := range tail(consults) {
			fmt.Fprintf(&b, "• %s — %s (%s)\n", c.Date, c.Specialty, c.Doctor)
		}
	}
	if len(meds) > 0 {
		b.WriteString("\n💊 <b>Medicamentos</b>\n")
		for _, m := range tail(meds) {
			fmt.Fprintf(&b, "• %s %s, %s\n", m.Medication, m.Dosage, m.Frequency)
		}
	}

	var buttons [][]telegram.InlineButton
	if len(exams) > 0 {
		b.WriteString("\n🩻 <b>Exámenes</b>\n")
		for _, x := range tail(exams) {
			files := len(x.URLList())
			fmt.Fprintf(&b, "• %s — %s (%d archivos)\n", x.Date, x.ExamType, files)
			buttons = append(buttons, []telegram.InlineButton{{
				Text:         "📎 Archivos: " + x.ExamType,
				CallbackData: "examfiles:" + x.ID,
			}})
		}
	}
	buttons = append(buttons, []telegram.InlineButton{{Text: "🏠 Menú principal", CallbackData: "main_menu"}})

	if err := e.msgr.SendMessageWithButtons(ctx, chatID, b.String(), buttons); err != nil {
		e.logger.Error("send_history_error", "error", err)
	}
	e.lastReply = "historial"
}

func (e *Engine) historyError(ctx context.Context, chatID int64, userID string, err error) {
	e.logger.Error("history_read_error", "user_id", userID, "error", err)
	e.send(ctx, chatID, textStoreRetryLater)
}

// showExamFiles lists an exam's attachments as one download button each.
func (e *Engine) showExamFiles(ctx context.Context, chatID int64, user records.User, examID string) {
	exam, ok, err := e.db.Exams.Get(examID)
	if err != nil {
		e.historyError(ctx, chatID, user.UserID, err)
		return
	}
	if !ok || exam.PatientID != user.UserID {
		e.send(ctx, chatID, "❌ No encontré ese examen.")
		return
	}
	urls := exam.URLList()
	text := fmt.Sprintf("📎 <b>Archivos del examen %s</b>\n\n📂 Total: %d\n\n💾 Selecciona un archivo para descargarlo:",
		exam.ExamType, len(urls))
	if len(urls) == 0 {
		text = fmt.Sprintf("📎 El examen <b>%s</b> no tiene archivos adjuntos todavía.", exam.ExamType)
	}
	buttons := make([][]telegram.InlineButton, 0, len(urls)+2)
	for i, url := range urls {
		buttons = append(buttons, []telegram.InlineButton{{
			Text:         fmt.Sprintf("%s Archivo %d (%s)", fileEmoji(url), i+1, fileKind(url)),
			CallbackData: fmt.Sprintf("examfile:%s:%d", exam.ID, i),
		}})
	}
	buttons = append(buttons, []telegram.InlineButton{{Text: "➕ Agregar archivos", CallbackData: "examadd:" + exam.ID}})
	buttons = append(buttons, []telegram.InlineButton{{Text: "🏠 Menú principal", CallbackData: "main_menu"}})

	if err := e.msgr.SendMessageWithButtons(ctx, chatID, text, buttons); err != nil {
		e.logger.Error("send_exam_files_error", "error", err)
	}
	e.lastReply = "archivos_examen"
}

// sendExamFile delivers one attachment; ref is "<examID>:<index>".
func (e *Engine) sendExamFile(ctx context.Context, chatID int64, user records.User, ref string) {
	examID, idxStr, ok := strings.Cut(ref, ":")
	if !ok {
		e.send(ctx, chatID, "❌ Referencia de archivo inválida.")
		return
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 0 {
		e.send(ctx, chatID, "❌ Referencia de archivo inválida.")
		return
	}

	exam, found, err := e.db.Exams.Get(examID)
	if err != nil {
		e.historyError(ctx, chatID, user.UserID, err)
		return
	}
	if !found || exam.PatientID != user.UserID {
		e.send(ctx, chatID, "❌ No encontré ese examen.")
		return
	}
	urls := exam.URLList()
	if idx >= len(urls) {
		e.send(ctx, chatID, "❌ Ese archivo ya no está disponible.")
		return
	}

	path, err := e.ingestor.LocalPath(urls[idx])
	if err != nil {
		e.logger.Error("exam_file_missing", "exam_id", examID, "url", urls[idx], "error", err)
		e.send(ctx, chatID, "❌ Archivo no encontrado. Intenta más tarde.")
		return
	}
	caption := fmt.Sprintf("🩻 %s (%s)", exam.ExamType, exam.Date)
	if err := e.msgr.SendDocument(ctx, chatID, path, filepath.Base(path), caption); err != nil {
		e.logger.Error("send_exam_file_error", "exam_id", examID, "error", err)
		e.send(ctx, chatID, "❌ Error al enviar el archivo. Intenta más tarde.")
		return
	}
	e.lastReply = "archivo_enviado"
}

func fileKind(url string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(url), ".")) {
	case "pdf":
		return "PDF"
	case "jpg", "jpeg", "png", "gif":
		return "Imagen"
	case "doc", "docx":
		return "Documento"
	default:
		return "Archivo"
	}
}

func fileEmoji(url string) string {
	switch fileKind(url) {
	case "PDF":
		return "📄"
	case "Imagen":
		return "🖼️"
	default:
		return "📎"
	}
}

func tail[T any](list []T) []T {
	if len(list) > historyTail {
		return list[len(list)-historyTail:]
	}
	return list
}
