// Package records defines the typed entities persisted by the bot and the
// repositories that map them onto sheetstore tables. Sheet and column names
// are shared with the web dashboard and must not drift.
package records

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/medconn/medconnect/sheetstore"
)

const (
	SheetUsers        = "Usuarios"
	SheetInteractions = "Interacciones_Bot"
	SheetConsults     = "Consultas"
	SheetMedications  = "Medicamentos"
	SheetExams        = "Examenes"
	SheetFamily       = "Familiares_Autorizados"
)

var (
	usersHeader = []string{
		"user_id", "telegram_id", "nombre", "apellido", "edad", "rut",
		"telefono", "email", "direccion", "fecha_registro", "estado", "plan",
	}
	consultsHeader = []string{
		"id", "patient_id", "doctor", "specialty", "date",
		"diagnosis", "treatment", "notes", "status",
	}
	medicationsHeader = []string{
		"id", "patient_id", "medication", "dosage", "frequency",
		"start_date", "end_date", "prescribed_by", "status",
	}
	examsHeader = []string{
		"id", "patient_id", "exam_type", "date", "results",
		"lab", "doctor", "file_url", "status",
	}
	interactionsHeader = []string{
		"id", "user_id", "username", "message", "response",
		"timestamp", "action_type", "status",
	}
	familyHeader = []string{
		"id", "user_id", "nombre_familiar", "parentesco", "telefono",
		"email", "telegram_id", "permisos", "fecha_autorizacion",
		"estado", "notificaciones",
	}
)

// Record id prefixes. IDs are second-resolution timestamps; per-user
// interactive throughput stays far below one operation per second, so the
// collision risk is accepted rather than defended against.
const (
	PrefixUser         = "USR"
	PrefixConsultation = "CON"
	PrefixMedication   = "MED"
	PrefixExam         = "EX"
	PrefixFamily       = "FAM"
)

func NewID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s", prefix, now.Format("20060102_150405"))
}

// Event statuses.
const (
	StatusPending    = "pendiente"
	StatusRegistered = "Registrado"
	StatusActive     = "activo"
	StatusCompleted  = "completada"
	StatusScheduled  = "programada"
)

// DB bundles the repositories over one workbook.
type DB struct {
	Users         *UserRepo
	Consultations *ConsultationRepo
	Medications   *MedicationRepo
	Exams         *ExamRepo
	Family        *FamilyRepo
	Log           *InteractionLog

	now func() time.Time
}

type Options struct {
	Store  *sheetstore.Store
	Logger *slog.Logger
	Now    func() time.Time
}

func Open(opts Options) (*DB, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}

	users, err := opts.Store.Table(SheetUsers, usersHeader)
	if err != nil {
		return nil, err
	}
	consults, err := opts.Store.Table(SheetConsults, consultsHeader)
	if err != nil {
		return nil, err
	}
	medications, err := opts.Store.Table(SheetMedications, medicationsHeader)
	if err != nil {
		return nil, err
	}
	exams, err := opts.Store.Table(SheetExams, examsHeader)
	if err != nil {
		return nil, err
	}
	interactions, err := opts.Store.Table(SheetInteractions, interactionsHeader)
	if err != nil {
		return nil, err
	}
	family, err := opts.Store.Table(SheetFamily, familyHeader)
	if err != nil {
		return nil, err
	}

	return &DB{
		Users:         &UserRepo{table: users, now: nowFn},
		Consultations: &ConsultationRepo{table: consults, now: nowFn},
		Medications:   &MedicationRepo{table: medications, now: nowFn},
		Exams:         &ExamRepo{table: exams, now: nowFn},
		Family:        &FamilyRepo{table: family, now: nowFn},
		Log:           &InteractionLog{table: interactions, logger: logger, now: nowFn},
		now:           nowFn,
	}, nil
}
