// Package seed creates a default platform admin on first boot when the users
// table is empty.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/d9705996/commune/internal/auth"
	"github.com/d9705996/commune/internal/model"
	"gorm.io/gorm"
)

// AdminOptions configures the seed admin user.
type AdminOptions struct {
	Email    string
	Password string // if empty, a random password is generated
	// Out receives a generated password exactly once. Nil discards it.
	Out io.Writer
}

// EnsureAdmin creates a seed admin user if no users exist and returns the
// created user, or nil when users already exist. It is safe to call on
// every startup.
func EnsureAdmin(ctx context.Context, db *gorm.DB, opts AdminOptions, log *slog.Logger) (*model.User, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&model.User{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil, nil
	}

	password := opts.Password
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return nil, fmt.Errorf("generate seed password: %w", err)
		}
		if opts.Out != nil {
			fmt.Fprintf(opts.Out, "[commune] seed admin password: %s\n", password)
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        opts.Email,
		Name:         "Seed Admin",
		PasswordHash: hash,
		Roles:        model.StringSlice{"Admin"},
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "email", opts.Email)
	return u, nil
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
