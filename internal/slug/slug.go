// Package slug derives the URL identifier of a community from its name and
// allocates a unique one among active communities.
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/d9705996/commune/internal/db"
	"github.com/d9705996/commune/internal/model"
	"gorm.io/gorm"
)

// Fallback is used when a name normalises to nothing.
const Fallback = "community"

var (
	disallowed = regexp.MustCompile(`[^a-z0-9 -]`)
	spaces     = regexp.MustCompile(` +`)
	hyphens    = regexp.MustCompile(`-+`)
)

// Normalize lowercases and trims name, drops every character outside
// [a-z0-9], whitespace and '-', turns whitespace runs into single hyphens,
// collapses repeated hyphens and trims hyphens from both ends. Whitespace is
// anything unicode.IsSpace accepts, including no-break and em spaces.
func Normalize(name string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, strings.ToLower(name))
	s = strings.TrimSpace(s)
	s = disallowed.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, "-")
	s = hyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// LockKey hashes s with the 31-multiplier string hash over UTF-16 code
// units, wrapped to 32 bits, and returns its absolute value.
func LockKey(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(c)
	}
	k := int64(h)
	if k < 0 {
		k = -k
	}
	return k
}

// Allocate returns a unique_url for name that no active community uses.
// tx must be the transaction that will insert the community: the advisory
// lock it takes is held until that transaction ends.
func Allocate(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := Normalize(name)
	if base == "" {
		base = Fallback
	}
	tx = tx.WithContext(ctx)

	if db.IsPostgres(tx) {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", LockKey(base)).Error; err != nil {
			return "", fmt.Errorf("acquire slug lock: %w", err)
		}
	}

	candidate := base
	for n := 1; ; n++ {
		taken, err := inUse(tx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// Available reports whether no active community uses url.
func Available(ctx context.Context, tx *gorm.DB, url string) (bool, error) {
	taken, err := inUse(tx.WithContext(ctx), url)
	return !taken, err
}

func inUse(tx *gorm.DB, url string) (bool, error) {
	var n int64
	if err := tx.Model(&model.Community{}).
		Where("unique_url = ? AND is_active = ?", url, true).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("probe slug %q: %w", url, err)
	}
	return n > 0, nil
}
