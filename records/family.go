package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/medconn/medconnect/sheetstore"
)

// Family access levels, lowest to highest.
const (
	PermRead  = "lectura"
	PermWrite = "escritura"
	PermAdmin = "admin"
)

// FamilyMember is one row of the Familiares_Autorizados sheet: a person the
// patient authorized to see or manage their records.
type FamilyMember struct {
	ID           string
	UserID       string
	Nombre       string
	Parentesco   string
	Telefono     string
	Email        string
	TelegramID   string
	Permisos     string
	Autorizado   string
	Estado       string
	Notificacion string
}

type FamilyRepo struct {
	table *sheetstore.Table
	now   func() time.Time
}

func (r *FamilyRepo) Create(f FamilyMember) (FamilyMember, error) {
	if strings.TrimSpace(f.UserID) == "" {
		return FamilyMember{}, fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(f.Nombre) == "" {
		return FamilyMember{}, fmt.Errorf("nombre_familiar is required")
	}
	now := r.now()
	if f.ID == "" {
		f.ID = NewID(PrefixFamily, now)
	}
	if f.Permisos == "" {
		f.Permisos = PermRead
	}
	if f.Autorizado == "" {
		f.Autorizado = now.Format("2006-01-02 15:04:05")
	}
	if f.Estado == "" {
		f.Estado = StatusActive
	}
	if f.Notificacion == "" {
		// Notifications only make sense when the familiar has a chat.
		if f.TelegramID != "" {
			f.Notificacion = "true"
		} else {
			f.Notificacion = "false"
		}
	}
	_, err := r.table.Append(map[string]string{
		"id":                 f.ID,
		"user_id":            f.UserID,
		"nombre_familiar":    f.Nombre,
		"parentesco":         f.Parentesco,
		"telefono":           f.Telefono,
		"email":              f.Email,
		"telegram_id":        f.TelegramID,
		"permisos":           f.Permisos,
		"fecha_autorizacion": f.Autorizado,
		"estado":             f.Estado,
		"notificaciones":     f.Notificacion,
	})
	if err != nil {
		return FamilyMember{}, err
	}
	return f, nil
}

// ListByUser returns the user's active authorized family members.
func (r *FamilyRepo) ListByUser(userID string) ([]FamilyMember, error) {
	recs, err := r.table.Scan(map[string]string{"user_id": userID, "estado": StatusActive})
	if err != nil {
		return nil, err
	}
	out := make([]FamilyMember, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FamilyMember{
			ID:           rec.Fields["id"],
			UserID:       rec.Fields["user_id"],
			Nombre:       rec.Fields["nombre_familiar"],
			Parentesco:   rec.Fields["parentesco"],
			Telefono:     rec.Fields["telefono"],
			Email:        rec.Fields["email"],
			TelegramID:   rec.Fields["telegram_id"],
			Permisos:     rec.Fields["permisos"],
			Autorizado:   rec.Fields["fecha_autorizacion"],
			Estado:       rec.Fields["estado"],
			Notificacion: rec.Fields["notificaciones"],
		})
	}
	return out, nil
}

// Revoke marks the authorization inactive; the row stays for audit.
func (r *FamilyRepo) Revoke(familyID string) error {
	return r.table.UpdateCell(familyID, "estado", "inactivo")
}
