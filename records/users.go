package records

import (
	"fmt"
	"strings"
	"time"

	"github.com/medconn/medconnect/sheetstore"
)

// User is one row of the Usuarios sheet. Rows created by the dashboard carry
// an email and no telegram_id until a patient links them; rows created by the
// bot carry a synthetic USR_ id and no email.
type User struct {
	UserID        string
	TelegramID    string
	Nombre        string
	Apellido      string
	Edad          string
	RUT           string
	Telefono      string
	Email         string
	Direccion     string
	FechaRegistro string
	Estado        string
	Plan          string
}

func (u User) DisplayName() string {
	name := strings.TrimSpace(u.Nombre + " " + u.Apellido)
	if name == "" {
		return u.UserID
	}
	return name
}

// Synthetic reports whether this row was provisioned by the bot itself
// rather than registered through the dashboard.
func (u User) Synthetic() bool {
	return strings.HasPrefix(u.UserID, PrefixUser+"_") && u.Email == ""
}

func userFromRecord(r sheetstore.Record) User {
	return User{
		UserID:        r.Fields["user_id"],
		TelegramID:    r.Fields["telegram_id"],
		Nombre:        r.Fields["nombre"],
		Apellido:      r.Fields["apellido"],
		Edad:          r.Fields["edad"],
		RUT:           r.Fields["rut"],
		Telefono:      r.Fields["telefono"],
		Email:         r.Fields["email"],
		Direccion:     r.Fields["direccion"],
		FechaRegistro: r.Fields["fecha_registro"],
		Estado:        r.Fields["estado"],
		Plan:          r.Fields["plan"],
	}
}

func (u User) fields() map[string]string {
	return map[string]string{
		"user_id":        u.UserID,
		"telegram_id":    u.TelegramID,
		"nombre":         u.Nombre,
		"apellido":       u.Apellido,
		"edad":           u.Edad,
		"rut":            u.RUT,
		"telefono":       u.Telefono,
		"email":          u.Email,
		"direccion":      u.Direccion,
		"fecha_registro": u.FechaRegistro,
		"estado":         u.Estado,
		"plan":           u.Plan,
	}
}

type UserRepo struct {
	table *sheetstore.Table
	now   func() time.Time
}

// Create appends the user row. A missing UserID gets a fresh synthetic id,
// a missing registration date gets today.
func (r *UserRepo) Create(u User) (User, error) {
	if strings.TrimSpace(u.TelegramID) == "" && strings.TrimSpace(u.Email) == "" {
		return User{}, fmt.Errorf("telegram_id or email is required")
	}
	if u.UserID == "" {
		u.UserID = NewID(PrefixUser, r.now())
	}
	if u.FechaRegistro == "" {
		u.FechaRegistro = r.now().Format("2006-01-02")
	}
	if u.Estado == "" {
		u.Estado = StatusActive
	}
	if _, err := r.table.Append(u.fields()); err != nil {
		return User{}, err
	}
	return u, nil
}

func (r *UserRepo) FindByTelegramID(telegramID string) (User, bool, error) {
	return r.findOne(map[string]string{"telegram_id": telegramID})
}

func (r *UserRepo) FindByEmail(email string) (User, bool, error) {
	return r.findOne(map[string]string{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *UserRepo) FindByID(userID string) (User, bool, error) {
	return r.findOne(map[string]string{"user_id": userID})
}

func (r *UserRepo) findOne(match map[string]string) (User, bool, error) {
	recs, err := r.table.Scan(match)
	if err != nil {
		return User{}, false, err
	}
	if len(recs) == 0 {
		return User{}, false, nil
	}
	return userFromRecord(recs[0]), true, nil
}

// ListByTelegramID returns every row claimed by the given chat, oldest first.
// More than one row means a duplicate left behind by linking.
func (r *UserRepo) ListByTelegramID(telegramID string) ([]User, error) {
	recs, err := r.table.Scan(map[string]string{"telegram_id": telegramID})
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, userFromRecord(rec))
	}
	return users, nil
}

// All returns every user row in sheet order.
func (r *UserRepo) All() ([]User, error) {
	recs, err := r.table.Scan(nil)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, userFromRecord(rec))
	}
	return users, nil
}

func (r *UserRepo) SetTelegramID(userID, telegramID string) error {
	return r.table.UpdateCell(userID, "telegram_id", telegramID)
}

func (r *UserRepo) UpdateField(userID, field, value string) error {
	return r.table.UpdateCell(userID, field, value)
}

func (r *UserRepo) Delete(userID string) error {
	return r.table.DeleteRow(userID)
}
