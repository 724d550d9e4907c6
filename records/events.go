package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/medconn/medconnect/sheetstore"
)

// Consultation is one row of the Consultas sheet.
type Consultation struct {
	ID        string
	PatientID string
	Doctor    string
	Specialty string
	Date      string
	Diagnosis string
	Treatment string
	Notes     string
	Status    string
}

type ConsultationRepo struct {
	table *sheetstore.Table
	now   func() time.Time
}

func (r *ConsultationRepo) Create(c Consultation) (Consultation, error) {
	if strings.TrimSpace(c.PatientID) == "" {
		return Consultation{}, fmt.Errorf("patient_id is required")
	}
	if c.ID == "" {
		c.ID = NewID(PrefixConsultation, r.now())
	}
	if c.Status == "" {
		c.Status = StatusCompleted
	}
	_, err := r.table.Append(map[string]string{
		"id":         c.ID,
		"patient_id": c.PatientID,
		"doctor":     c.Doctor,
		"specialty":  c.Specialty,
		"date":       c.Date,
		"diagnosis":  c.Diagnosis,
		"treatment":  c.Treatment,
		"notes":      c.Notes,
		"status":     c.Status,
	})
	if err != nil {
		return Consultation{}, err
	}
	return c, nil
}

func (r *ConsultationRepo) ListByPatient(patientID string) ([]Consultation, error) {
	recs, err := r.table.Scan(map[string]string{"patient_id": patientID})
	if err != nil {
		return nil, err
	}
	out := make([]Consultation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Consultation{
			ID:        rec.Fields["id"],
			PatientID: rec.Fields["patient_id"],
			Doctor:    rec.Fields["doctor"],
			Specialty: rec.Fields["specialty"],
			Date:      rec.Fields["date"],
			Diagnosis: rec.Fields["diagnosis"],
			Treatment: rec.Fields["treatment"],
			Notes:     rec.Fields["notes"],
			Status:    rec.Fields["status"],
		})
	}
	return out, nil
}

// Medication is one row of the Medicamentos sheet.
type Medication struct {
	ID           string
	PatientID    string
	Medication   string
	Dosage       string
	Frequency    string
	StartDate    string
	EndDate      string
	PrescribedBy string
	Status       string
}

type MedicationRepo struct {
	table *sheetstore.Table
	now   func() time.Time
}

func (r *MedicationRepo) Create(m Medication) (Medication, error) {
	if strings.TrimSpace(m.PatientID) == "" {
		return Medication{}, fmt.Errorf("patient_id is required")
	}
	if m.ID == "" {
		m.ID = NewID(PrefixMedication, r.now())
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	_, err := r.table.Append(map[string]string{
		"id":            m.ID,
		"patient_id":    m.PatientID,
		"medication":    m.Medication,
		"dosage":        m.Dosage,
		"frequency":     m.Frequency,
		"start_date":    m.StartDate,
		"end_date":      m.EndDate,
		"prescribed_by": m.PrescribedBy,
		"status":        m.Status,
	})
	if err != nil {
		return Medication{}, err
	}
	return m, nil
}

func (r *MedicationRepo) ListByPatient(patientID string) ([]Medication, error) {
	recs, err := r.table.Scan(map[string]string{"patient_id": patientID})
	if err != nil {
		return nil, err
	}
	out := make([]Medication, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Medication{
			ID:           rec.Fields["id"],
			PatientID:    rec.Fields["patient_id"],
			Medication:   rec.Fields["medication"],
			Dosage:       rec.Fields["dosage"],
			Frequency:    rec.Fields["frequency"],
			StartDate:    rec.Fields["start_date"],
			EndDate:      rec.Fields["end_date"],
			PrescribedBy: rec.Fields["prescribed_by"],
			Status:       rec.Fields["status"],
		})
	}
	return out, nil
}

// Exam is one row of the Examenes sheet. FileURLs holds zero or more
// comma-separated attachment URLs; new uploads append, never replace.
type Exam struct {
	ID        string
	PatientID string
	ExamType  string
	Date      string
	Results   string
	Lab       string
	Doctor    string
	FileURLs  string
	Status    string
}

// URLList splits FileURLs into its individual entries.
func (e Exam) URLList() []string {
	if strings.TrimSpace(e.FileURLs) == "" {
		return nil
	}
	parts := strings.Split(e.FileURLs, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type ExamRepo struct {
	table *sheetstore.Table
	now   func() time.Time
}

func (r *ExamRepo) Create(e Exam) (Exam, error) {
	if strings.TrimSpace(e.PatientID) == "" {
		return Exam{}, fmt.Errorf("patient_id is required")
	}
	if e.ID == "" {
		e.ID = NewID(PrefixExam, r.now())
	}
	if e.Status == "" {
		e.Status = StatusRegistered
	}
	_, err := r.table.Append(map[string]string{
		"id":         e.ID,
		"patient_id": e.PatientID,
		"exam_type":  e.ExamType,
		"date":       e.Date,
		"results":    e.Results,
		"lab":        e.Lab,
		"doctor":     e.Doctor,
		"file_url":   e.FileURLs,
		"status":     e.Status,
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (r *ExamRepo) Get(examID string) (Exam, bool, error) {
	recs, err := r.table.Scan(map[string]string{"id": examID})
	if err != nil {
		return Exam{}, false, err
	}
	if len(recs) == 0 {
		return Exam{}, false, nil
	}
	return examFromRecord(recs[0]), true, nil
}

func (r *ExamRepo) ListByPatient(patientID string) ([]Exam, error) {
	recs, err := r.table.Scan(map[string]string{"patient_id": patientID})
	if err != nil {
		return nil, err
	}
	out := make([]Exam, 0, len(recs))
	for _, rec := range recs {
		out = append(out, examFromRecord(rec))
	}
	return out, nil
}

// AppendFileURLs joins the new urls onto the exam's existing file_url cell.
func (r *ExamRepo) AppendFileURLs(examID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	exam, ok, err := r.Get(examID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("exam %s: %w", examID, sheetstore.ErrRecordNotFound)
	}
	merged := append(exam.URLList(), urls...)
	return r.table.UpdateCell(examID, "file_url", strings.Join(merged, ","))
}

func (r *ExamRepo) UpdateStatus(examID, status string) error {
	return r.table.UpdateCell(examID, "status", status)
}

func examFromRecord(rec sheetstore.Record) Exam {
	return Exam{
		ID:        rec.Fields["id"],
		PatientID: rec.Fields["patient_id"],
		ExamType:  rec.Fields["exam_type"],
		Date:      rec.Fields["date"],
		Results:   rec.Fields["results"],
		Lab:       rec.Fields["lab"],
		Doctor:    rec.Fields["doctor"],
		FileURLs:  rec.Fields["file_url"],
		Status:    rec.Fields["status"],
	}
}
