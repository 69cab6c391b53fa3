// Package onboard implements the first-run wizard that writes the session
// row.
package onboard

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/Karniz-UI/NewEraV4Fix/pkg/config"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/i18n"
	"github.com/Karniz-UI/NewEraV4Fix/pkg/store"
)

const maxAttempts = 3

var tokenPattern = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{20,}$`)

// ErrTooManyAttempts ends the wizard after repeated invalid answers.
var ErrTooManyAttempts = errors.New("too many invalid answers")

// Prompter asks the operator for values.
type Prompter interface {
	Ask(label, def string) (string, error)
	Secret(label string) (string, error)
}

// SessionStore is the part of *store.Store the wizard writes to.
type SessionStore interface {
	SaveSession(ctx context.Context, sess store.Session) error
}

// Run asks for the session values of transport and saves them.
func Run(ctx context.Context, st SessionStore, cfg *config.Config, transport string, p Prompter) (store.Session, error) {
	sess := store.Session{
		Transport: transport,
		Prefix:    cfg.Defaults.Prefix,
		Language:  i18n.Normalize(cfg.Defaults.Language),
		OwnerID:   cfg.Defaults.OwnerID,
	}

	if transport == config.TransportTelegram {
		secret := strings.TrimSpace(cfg.Telegram.Token)
		if secret == "" || !tokenPattern.MatchString(secret) {
			v, err := askValid(func() (string, error) { return p.Secret("Bot token") }, validateToken)
			if err != nil {
				return store.Session{}, err
			}
			secret = v
		}
		sess.Secret = secret

		owner, err := askValid(func() (string, error) { return p.Ask("Owner user id", sess.OwnerID) }, validateOwnerID)
		if err != nil {
			return store.Session{}, err
		}
		sess.OwnerID = owner
	}

	prefix, err := askValid(func() (string, error) { return p.Ask("Command prefix", sess.Prefix) }, validatePrefix)
	if err != nil {
		return store.Session{}, err
	}
	sess.Prefix = prefix

	lang, err := askValid(func() (string, error) {
		return p.Ask("Language ("+strings.Join(i18n.Codes(), "/")+")", sess.Language)
	}, validateLanguage)
	if err != nil {
		return store.Session{}, err
	}
	sess.Language = lang

	if err := st.SaveSession(ctx, sess); err != nil {
		return store.Session{}, err
	}
	return sess, nil
}

// askValid repeats ask until validate accepts the trimmed answer.
func askValid(ask func() (string, error), validate func(string) error) (string, error) {
	var last error
	for range maxAttempts {
		v, err := ask()
		if err != nil {
			return "", err
		}
		v = strings.TrimSpace(v)
		if last = validate(v); last == nil {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrTooManyAttempts, last)
}

func validateToken(v string) error {
	if !tokenPattern.MatchString(v) {
		return errors.New("token must look like 123456:ABC-DEF...")
	}
	return nil
}

func validateOwnerID(v string) error {
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("owner id must be a positive number, got %q", v)
	}
	return nil
}

func validatePrefix(v string) error {
	if v == "" || len([]rune(v)) > 3 {
		return errors.New("prefix must be 1 to 3 characters")
	}
	for _, r := range v {
		if unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return fmt.Errorf("prefix %q must not contain spaces, letters or digits", v)
		}
	}
	return nil
}

func validateLanguage(v string) error {
	if !i18n.Supported(v) {
		return fmt.Errorf("unsupported language %q", v)
	}
	return nil
}
