package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/medconn/medconnect/identity"
	"github.com/medconn/medconnect/ingest"
	"github.com/medconn/medconnect/internal/telegram"
	"github.com/medconn/medconnect/records"
	"github.com/medconn/medconnect/sheetstore"
)

type fakeMessenger struct {
	texts   []string
	buttons [][][]telegram.InlineButton
	docs    []string
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendMessageWithButtons(_ context.Context, _ int64, text string, buttons [][]telegram.InlineButton) error {
	f.texts = append(f.texts, text)
	f.buttons = append(f.buttons, buttons)
	return nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, _ string, _ string) error {
	return nil
}

func (f *fakeMessenger) SendDocument(_ context.Context, _ int64, filePath, _, _ string) error {
	f.docs = append(f.docs, filePath)
	return nil
}

func (f *fakeMessenger) last() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

// fakeIngestor stages attachments without touching the network.
type fakeIngestor struct {
	staged map[string][]ingest.Attachment
	seq    int
}

func newFakeIngestor() *fakeIngestor {
	return &fakeIngestor{staged: make(map[string][]ingest.Attachment)}
}

func (f *fakeIngestor) Ingest(_ context.Context, userID, _, originalName string, _ int64, kind string) (ingest.Attachment, error) {
	f.seq++
	att := ingest.Attachment{
		Filename:     fmt.Sprintf("f%d.pdf", f.seq),
		OriginalName: originalName,
		FileURL:      fmt.Sprintf("/uploads/medical_files/f%d.pdf", f.seq),
		MediaKind:    kind,
	}
	f.staged[userID] = append(f.staged[userID], att)
	return att, nil
}

func (f *fakeIngestor) Staged(userID string) []ingest.Attachment { return f.staged[userID] }

func (f *fakeIngestor) Drain(userID string) []ingest.Attachment {
	atts := f.staged[userID]
	delete(f.staged, userID)
	return atts
}

func (f *fakeIngestor) Discard(userID string) { delete(f.staged, userID) }

func (f *fakeIngestor) LocalPath(fileURL string) (string, error) {
	return filepath.Join("/tmp", filepath.Base(fileURL)), nil
}

type engineFixture struct {
	engine *Engine
	msgr   *fakeMessenger
	db     *records.DB
	ing    *fakeIngestor
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	store, err := sheetstore.Open(filepath.Join(t.TempDir(), "medconnect.xlsx"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	db, err := records.Open(records.Options{Store: store, Now: now})
	require.NoError(t, err)
	resolver, err := identity.NewResolver(db.Users, slog.Default())
	require.NoError(t, err)

	msgr := &fakeMessenger{}
	ing := newFakeIngestor()
	engine, err := NewEngine(Options{
		Messenger: msgr,
		Resolver:  resolver,
		DB:        db,
		Ingestor:  ing,
		Now:       now,
	})
	require.NoError(t, err)
	return &engineFixture{engine: engine, msgr: msgr, db: db, ing: ing}
}

// registeredUser seeds a dashboard-style row already linked to chat 42.
func (fx *engineFixture) registeredUser(t *testing.T) records.User {
	t.Helper()
	u, err := fx.db.Users.Create(records.User{
		UserID:     "web-1",
		TelegramID: "42",
		Nombre:     "Ana",
		Apellido:   "Rojas",
		Edad:       "34",
		Telefono:   "+56911111111",
		Email:      "ana@example.com",
	})
	require.NoError(t, err)
	return u
}

func textUpdate(text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			Chat: &telegram.Chat{ID: 42},
			From: &telegram.User{ID: 42, FirstName: "Ana", Username: "ana"},
			Text: text,
		},
	}
}

func callbackUpdate(data string) telegram.Update {
	return telegram.Update{
		UpdateID: 2,
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb1",
			From:    &telegram.User{ID: 42, FirstName: "Ana"},
			Message: &telegram.Message{Chat: &telegram.Chat{ID: 42}},
			Data:    data,
		},
	}
}

func TestFirstContactStartsOnboarding(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, textUpdate("hola"))
	require.Contains(t, fx.msgr.last(), "Bienvenido")

	fx.engine.HandleUpdate(ctx, textUpdate("Ana Rojas"))
	require.Contains(t, fx.msgr.last(), "años")

	fx.engine.HandleUpdate(ctx, textUpdate("treinta"))
	require.Contains(t, fx.msgr.last(), "edad inválida")

	fx.engine.HandleUpdate(ctx, textUpdate("34"))
	require.Contains(t, fx.msgr.last(), "teléfono")

	fx.engine.HandleUpdate(ctx, textUpdate("+56911111111"))
	require.Contains(t, fx.msgr.last(), "correo")

	fx.engine.HandleUpdate(ctx, textUpdate("ana@nueva.com"))

	u, ok, err := fx.db.Users.FindByTelegramID("42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Ana", u.Nombre)
	require.Equal(t, "Rojas", u.Apellido)
	require.Equal(t, "34", u.Edad)
	require.Equal(t, "ana@nueva.com", u.Email)
}

// An unclaimed dashboard row is claimed during resolution itself, so the
// first contact lands directly in the menu instead of onboarding.
func TestFirstContactClaimsDashboardRow(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.db.Users.Create(records.User{UserID: "web-9", Nombre: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	fx.engine.HandleUpdate(ctx, textUpdate("hola"))
	require.NotContains(t, fx.msgr.last(), "Bienvenido")
	require.Contains(t, fx.msgr.last(), "Hola, Ana")

	rows, err := fx.db.Users.ListByTelegramID("42")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "web-9", rows[0].UserID)
}

func TestConsultaFlowPersistsNormalizedRecord(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_consulta"))
	require.Contains(t, fx.msgr.last(), "consulta realizada")

	fx.engine.HandleUpdate(ctx, textUpdate("15/03/2026, Cardiología, Dr. Soto, Hospital Central, control sano, ninguno"))
	require.Contains(t, fx.msgr.last(), "Consulta registrada")

	list, err := fx.db.Consultations.ListByPatient("web-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "2026-03-15", list[0].Date)
	require.Equal(t, "Dr. Soto", list[0].Doctor)
	require.Equal(t, "Centro: Hospital Central", list[0].Notes)
	require.Equal(t, records.StatusCompleted, list[0].Status)
}

func TestInvalidInputRepromptsWithoutAdvancing(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_consulta"))
	fx.engine.HandleUpdate(ctx, textUpdate("15/03/2026, Cardiología, Dr. Soto"))
	require.Contains(t, fx.msgr.last(), "faltan datos")

	list, err := fx.db.Consultations.ListByPatient("web-1")
	require.NoError(t, err)
	require.Empty(t, list)

	// Session survives the rejection; a corrected answer still lands.
	fx.engine.HandleUpdate(ctx, textUpdate("hoy, Cardiología, Dr. Soto, Hospital Central, control, ninguno"))
	list, err = fx.db.Consultations.ListByPatient("web-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestCancelDiscardsDraft(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_medicamento"))
	fx.engine.HandleUpdate(ctx, textUpdate("cancelar"))
	require.Contains(t, fx.msgr.last(), "cancelada")

	// After cancel nothing is mid-flight: structured text persists only
	// through a fresh classification, and free text falls back.
	fx.engine.HandleUpdate(ctx, textUpdate("xyzzy"))
	require.Contains(t, fx.msgr.last(), "No estoy seguro")

	meds, err := fx.db.Medications.ListByPatient("web-1")
	require.NoError(t, err)
	require.Empty(t, meds)
}

func TestKeywordInsideFlowStaysContextual(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_consulta"))
	fx.engine.HandleUpdate(ctx, textUpdate("el doctor dijo que la consulta era de control"))
	// Rejected as malformed data, not reinterpreted as a menu keyword.
	require.Contains(t, fx.msgr.last(), "campos")
}

func TestExamFlowWithAttachments(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_examen"))
	fx.engine.HandleUpdate(ctx, textUpdate("Eco abdominal, 28/05/2025, Lab hospital, pólipos vesiculares, Dr. Pinto"))
	require.Contains(t, fx.msgr.last(), "adjuntar")

	doc := textUpdate("")
	doc.Message.Text = ""
	doc.Message.Document = &telegram.Document{FileID: "id1", FileName: "informe.pdf", FileSize: 10}
	fx.engine.HandleUpdate(ctx, doc)
	require.Contains(t, fx.msgr.last(), "1 en total")

	doc2 := textUpdate("")
	doc2.Message.Text = ""
	doc2.Message.Document = &telegram.Document{FileID: "id2", FileName: "detalle.pdf", FileSize: 10}
	fx.engine.HandleUpdate(ctx, doc2)

	fx.engine.HandleUpdate(ctx, textUpdate("listo"))
	require.Contains(t, fx.msgr.last(), "Examen registrado")

	exams, err := fx.db.Exams.ListByPatient("web-1")
	require.NoError(t, err)
	require.Len(t, exams, 1)
	require.Equal(t, "2025-05-28", exams[0].Date)
	require.Equal(t, records.StatusRegistered, exams[0].Status)
	require.Equal(t, []string{
		"/uploads/medical_files/f1.pdf",
		"/uploads/medical_files/f2.pdf",
	}, exams[0].URLList())
}

func TestExamPendingSkipsAttachments(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_examen"))
	fx.engine.HandleUpdate(ctx, textUpdate("Hemograma, hoy, Lab Central, pendiente de resultados, Dra. Leiva"))

	// A file sent before declaring the exam pending must not stick to it.
	doc := textUpdate("")
	doc.Message.Text = ""
	doc.Message.Document = &telegram.Document{FileID: "id1", FileName: "orden.pdf", FileSize: 10}
	fx.engine.HandleUpdate(ctx, doc)

	fx.engine.HandleUpdate(ctx, textUpdate("pendiente"))

	exams, err := fx.db.Exams.ListByPatient("web-1")
	require.NoError(t, err)
	require.Len(t, exams, 1)
	require.Equal(t, records.StatusPending, exams[0].Status)
	require.Empty(t, exams[0].URLList())
	require.Empty(t, fx.ing.Staged("web-1"))
}

func TestStructuredDataWithoutSession(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, textUpdate("20/04/2026, 10:30, Dermatología, Dra. Ruiz, Clínica Sur, control de lunares"))
	require.Contains(t, fx.msgr.last(), "Consulta agendada")

	list, err := fx.db.Consultations.ListByPatient("web-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, records.StatusScheduled, list[0].Status)
	require.Equal(t, "Hora: 10:30", list[0].Treatment)
	require.Equal(t, "control de lunares", list[0].Diagnosis)
}

func TestVincularConflicts(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	ctx := context.Background()

	_, err := fx.db.Users.Create(records.User{UserID: "web-2", Email: "otra@example.com", TelegramID: "99"})
	require.NoError(t, err)
	fx.registeredUser(t)

	fx.engine.HandleUpdate(ctx, textUpdate("/vincular otra@example.com"))
	require.Contains(t, fx.msgr.last(), "vinculado a otra cuenta")

	fx.engine.HandleUpdate(ctx, textUpdate("/vincular nadie@example.com"))
	require.Contains(t, fx.msgr.last(), "No encontré ese correo")

	fx.engine.HandleUpdate(ctx, textUpdate("/vincular"))
	require.Contains(t, fx.msgr.last(), "/vincular tu-email@ejemplo.com")
}

func TestHistoryViewListsExamFiles(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	exam, err := fx.db.Exams.Create(records.Exam{
		PatientID: "web-1",
		ExamType:  "Eco abdominal",
		Date:      "2025-05-28",
		FileURLs:  "/uploads/medical_files/a.pdf,/uploads/medical_files/b.jpg",
	})
	require.NoError(t, err)

	fx.engine.HandleUpdate(ctx, callbackUpdate("ver_historial"))
	require.Contains(t, fx.msgr.last(), "historial médico")
	require.NotEmpty(t, fx.msgr.buttons)

	fx.engine.HandleUpdate(ctx, callbackUpdate("examfiles:"+exam.ID))
	require.Contains(t, fx.msgr.last(), "Selecciona un archivo")

	fx.engine.HandleUpdate(ctx, callbackUpdate("examfile:"+exam.ID+":1"))
	require.Len(t, fx.msgr.docs, 1)
	require.True(t, strings.HasSuffix(fx.msgr.docs[0], "b.jpg"))
}

func TestFileOutsideExamFlow(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	doc := textUpdate("")
	doc.Message.Text = ""
	doc.Message.Document = &telegram.Document{FileID: "id1", FileName: "informe.pdf"}
	fx.engine.HandleUpdate(ctx, doc)
	require.Contains(t, fx.msgr.last(), "no hay un examen en curso")
}

// Once an exam row exists, its file list keeps growing through the history
// view's add-files sub-loop.
func TestExamAddFilesAfterCreation(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, callbackUpdate("reg_examen"))
	fx.engine.HandleUpdate(ctx, textUpdate("Eco abdominal, 28/05/2025, Lab hospital, pólipos vesiculares, Dr. Pinto"))

	doc := textUpdate("")
	doc.Message.Text = ""
	doc.Message.Document = &telegram.Document{FileID: "id1", FileName: "informe.pdf", FileSize: 10}
	fx.engine.HandleUpdate(ctx, doc)
	fx.engine.HandleUpdate(ctx, textUpdate("listo"))

	exams, err := fx.db.Exams.ListByPatient("web-1")
	require.NoError(t, err)
	require.Len(t, exams, 1)
	require.Len(t, exams[0].URLList(), 1)

	fx.engine.HandleUpdate(ctx, callbackUpdate("examadd:"+exams[0].ID))
	require.Contains(t, fx.msgr.last(), "Agregar archivos")

	doc2 := textUpdate("")
	doc2.Message.Text = ""
	doc2.Message.Document = &telegram.Document{FileID: "id2", FileName: "detalle.pdf", FileSize: 10}
	fx.engine.HandleUpdate(ctx, doc2)
	fx.engine.HandleUpdate(ctx, textUpdate("listo"))
	require.Contains(t, fx.msgr.last(), "2 en total")

	exam, found, err := fx.db.Exams.Get(exams[0].ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{
		"/uploads/medical_files/f1.pdf",
		"/uploads/medical_files/f2.pdf",
	}, exam.URLList())
}

func TestAddingFilesMarksPendingExamRegistered(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	created, err := fx.db.Exams.Create(records.Exam{
		PatientID: "web-1",
		ExamType:  "Hemograma",
		Date:      "2026-03-20",
		Status:    records.StatusPending,
	})
	require.NoError(t, err)

	fx.engine.HandleUpdate(ctx, callbackUpdate("examadd:"+created.ID))

	doc := textUpdate("")
	doc.Message.Text = ""
	doc.Message.Document = &telegram.Document{FileID: "id1", FileName: "resultado.pdf", FileSize: 10}
	fx.engine.HandleUpdate(ctx, doc)
	fx.engine.HandleUpdate(ctx, textUpdate("listo"))

	exam, found, err := fx.db.Exams.Get(created.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, records.StatusRegistered, exam.Status)
	require.Len(t, exam.URLList(), 1)
}

func TestExamAddFilesRejectsForeignExam(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	foreign, err := fx.db.Exams.Create(records.Exam{PatientID: "web-9", ExamType: "Eco", Date: "2026-01-01"})
	require.NoError(t, err)

	fx.engine.HandleUpdate(ctx, callbackUpdate("examadd:"+foreign.ID))
	require.Contains(t, fx.msgr.last(), "No encontré ese examen")
}

func TestFamilyAuthorizationFlow(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, textUpdate("quiero autorizar a un familiar"))
	require.Contains(t, fx.msgr.last(), "Gestión Familiar")

	fx.engine.HandleUpdate(ctx, callbackUpdate("authorize_family"))
	require.Contains(t, fx.msgr.last(), "Paso 1")

	fx.engine.HandleUpdate(ctx, textUpdate("Pedro Rojas"))
	require.Contains(t, fx.msgr.last(), "parentesco")

	fx.engine.HandleUpdate(ctx, textUpdate("hijo"))
	require.Contains(t, fx.msgr.last(), "teléfono")

	fx.engine.HandleUpdate(ctx, textUpdate("+56922222222"))
	require.Contains(t, fx.msgr.last(), "permisos")

	// Free text during the button-only step must not advance the flow.
	fx.engine.HandleUpdate(ctx, textUpdate("control total"))
	require.Contains(t, fx.msgr.last(), "botones")

	fx.engine.HandleUpdate(ctx, callbackUpdate("perm_admin"))
	require.Contains(t, fx.msgr.last(), "Telegram")

	fx.engine.HandleUpdate(ctx, textUpdate("saltar"))

	list, err := fx.db.Family.ListByUser("web-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Pedro Rojas", list[0].Nombre)
	require.Equal(t, "hijo", list[0].Parentesco)
	require.Equal(t, records.PermAdmin, list[0].Permisos)
	require.Equal(t, "false", list[0].Notificacion)

	// The closing family menu lists the new member.
	require.Contains(t, fx.msgr.last(), "Pedro Rojas")
}

func TestThanksGetsDistinctReply(t *testing.T) {
	t.Parallel()

	fx := newEngineFixture(t)
	fx.registeredUser(t)
	ctx := context.Background()

	fx.engine.HandleUpdate(ctx, textUpdate("muchas gracias"))
	require.Contains(t, fx.msgr.last(), "De nada")
	require.NotContains(t, fx.msgr.last(), "Hasta pronto")
}

func TestTruncateRunesCutsOnRuneBoundary(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("á", 200)
	got := truncateRunes(long, 120)
	if !utf8.ValidString(got) {
		t.Fatalf("truncateRunes() produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != 120 {
		t.Fatalf("RuneCountInString() = %d, want 120", n)
	}
	if short := "✅ listo"; truncateRunes(short, 120) != short {
		t.Fatalf("truncateRunes() altered a short reply")
	}
}
