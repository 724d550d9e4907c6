// Package identity binds Telegram chat identities to Usuarios rows. A chat
// id belongs to at most one row; claiming a dashboard-registered row is
// exclusive and cleans up any synthetic placeholder left behind.
package identity

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/medconn/medconnect/records"
)

var (
	// ErrEmailAlreadyLinked means the target row is already claimed by a
	// different chat identity.
	ErrEmailAlreadyLinked = fmt.Errorf("email already linked to another chat")
	// ErrChatAlreadyLinked means the caller's chat identity already owns a
	// different registered account.
	ErrChatAlreadyLinked = fmt.Errorf("chat already linked to another account")
	// ErrEmailNotFound means no Usuarios row carries the given email.
	ErrEmailNotFound = fmt.Errorf("email not registered")
)

type Resolver struct {
	users  *records.UserRepo
	logger *slog.Logger
}

func NewResolver(users *records.UserRepo, logger *slog.Logger) (*Resolver, error) {
	if users == nil {
		return nil, fmt.Errorf("users repo is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{users: users, logger: logger}, nil
}

// ResolveOrCreate maps a chat identity to exactly one user row.
// Resolution order: exact telegram_id match first, then a claim of the first
// registered row (email set, telegram_id empty), then a fresh synthetic row.
// After a claim the chat's leftover placeholder rows are deleted, so the
// identity invariant holds across repeated calls.
func (r *Resolver) ResolveOrCreate(telegramID, firstName, lastName string) (records.User, error) {
	telegramID = strings.TrimSpace(telegramID)
	if telegramID == "" {
		return records.User{}, fmt.Errorf("telegram id is required")
	}

	if u, ok, err := r.users.FindByTelegramID(telegramID); err != nil {
		return records.User{}, err
	} else if ok {
		return u, nil
	}

	all, err := r.users.All()
	if err != nil {
		return records.User{}, err
	}
	for _, u := range all {
		if u.TelegramID != "" || !strings.Contains(u.Email, "@") {
			continue
		}
		if err := r.users.SetTelegramID(u.UserID, telegramID); err != nil {
			return records.User{}, err
		}
		u.TelegramID = telegramID
		if err := r.dedup(telegramID, u.UserID); err != nil {
			return records.User{}, err
		}
		r.logger.Info("identity_registered_user_claimed",
			"telegram_id", telegramID, "user_id", u.UserID)
		return u, nil
	}

	u, err := r.users.Create(records.User{
		TelegramID: telegramID,
		Nombre:     firstName,
		Apellido:   lastName,
		Plan:       "freemium",
	})
	if err != nil {
		return records.User{}, err
	}
	r.logger.Info("identity_synthetic_user_created",
		"telegram_id", telegramID, "user_id", u.UserID)
	return u, nil
}

// LinkByEmail claims the Usuarios row registered under email for the given
// chat identity. The claim is exclusive: it fails without touching the store
// if the row already belongs to another chat, or if the chat already owns a
// different registered account. After a successful claim the chat's
// synthetic placeholder rows are deleted.
func (r *Resolver) LinkByEmail(telegramID, email string) (records.User, error) {
	telegramID = strings.TrimSpace(telegramID)
	email = strings.ToLower(strings.TrimSpace(email))
	if telegramID == "" || email == "" {
		return records.User{}, fmt.Errorf("telegram id and email are required")
	}

	target, ok, err := r.users.FindByEmail(email)
	if err != nil {
		return records.User{}, err
	}
	if !ok {
		return records.User{}, ErrEmailNotFound
	}
	if target.TelegramID != "" && target.TelegramID != telegramID {
		return records.User{}, ErrEmailAlreadyLinked
	}

	if current, ok, err := r.users.FindByTelegramID(telegramID); err != nil {
		return records.User{}, err
	} else if ok && !current.Synthetic() && current.UserID != target.UserID {
		return records.User{}, ErrChatAlreadyLinked
	}

	if target.TelegramID == "" {
		if err := r.users.SetTelegramID(target.UserID, telegramID); err != nil {
			return records.User{}, err
		}
		target.TelegramID = telegramID
	}

	if err := r.dedup(telegramID, target.UserID); err != nil {
		return records.User{}, err
	}
	r.logger.Info("identity_account_linked",
		"telegram_id", telegramID, "user_id", target.UserID)
	return target, nil
}

// dedup deletes synthetic placeholder rows that share the chat identity with
// the freshly claimed row, so at most one row keeps the telegram_id.
func (r *Resolver) dedup(telegramID, keepUserID string) error {
	claimed, err := r.users.ListByTelegramID(telegramID)
	if err != nil {
		return err
	}
	for _, u := range claimed {
		if u.UserID == keepUserID || !u.Synthetic() {
			continue
		}
		if err := r.users.Delete(u.UserID); err != nil {
			return err
		}
		r.logger.Info("identity_placeholder_removed",
			"telegram_id", telegramID, "user_id", u.UserID)
	}
	return nil
}
