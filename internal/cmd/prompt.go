package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/felixgeelhaar/storefront/internal/auth"
	"github.com/felixgeelhaar/storefront/internal/session"
)

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// promptCredentials asks for whatever creds is missing.
func promptCredentials(creds *session.Credentials) error {
	roleOptions := make([]huh.Option[auth.Role], len(auth.Roles))
	for i, r := range auth.Roles {
		roleOptions[i] = huh.NewOption(r.String(), r)
	}

	var fields []huh.Field
	if creds.Email == "" {
		fields = append(fields, huh.NewInput().
			Title("Email").
			Value(&creds.Email).
			Validate(func(s string) error {
				if !strings.Contains(s, "@") {
					return fmt.Errorf("enter an email address")
				}
				return nil
			}))
	}
	if creds.Password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&creds.Password))
	}
	fields = append(fields, huh.NewSelect[auth.Role]().
		Title("Sign in as").
		Options(roleOptions...).
		Value(&creds.Role))

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// readSecret reads one line from r, for --password-stdin.
func readSecret(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
