package security

import (
	"errors"
	"os"
	"regexp"
	"strings"

	"github.com/treykane/vpnpick/internal/vpnerr"
)

// ClassifiedError separates a user-safe message from verbose debug details.
type ClassifiedError struct {
	UserSafe    string
	DebugDetail string
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.UserSafe) == "" {
		return "operation failed"
	}
	return e.UserSafe
}

// NewClassifiedError creates a new error with separated user-safe and debug details.
func NewClassifiedError(userSafe, debugDetail string) error {
	return &ClassifiedError{UserSafe: userSafe, DebugDetail: debugDetail}
}

// UserMessage returns a message safe to show in CLI/TUI contexts. Engine
// errors lose their kind tag; a configuration without servers gets a hint
// instead of the parser's wording.
func UserMessage(err error, redact bool) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ce *ClassifiedError
	var ve *vpnerr.Error
	switch {
	case errors.As(err, &ce):
		msg = ce.UserSafe
		if msg == "" {
			msg = "operation failed"
		}
	case errors.Is(err, vpnerr.ErrNoEndpoints):
		msg = "no VPN servers found in the generated configuration; the server list may have changed format"
	case errors.As(err, &ve) && ve.Kind == vpnerr.KindCancelled:
		msg = "cancelled"
	case errors.As(err, &ve):
		msg = ve.Op
		if ve.Err != nil {
			msg += ": " + ve.Err.Error()
		}
	}
	if redact {
		return RedactMessage(msg)
	}
	return msg
}

// DebugMessage returns detailed error text for logs.
func DebugMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		if strings.TrimSpace(ce.DebugDetail) != "" {
			return ce.DebugDetail
		}
	}
	return err.Error()
}

// pemBlock matches inline key material an error may quote from a template.
var pemBlock = regexp.MustCompile(`(?s)-----BEGIN ([A-Z ]+)-----.*?-----END [A-Z ]+-----`)

// RedactMessage shortens the home directory to ~ and replaces embedded PEM
// blocks, so pasted error output reveals neither the account name nor the
// client key.
func RedactMessage(msg string) string {
	if msg == "" {
		return msg
	}
	msg = pemBlock.ReplaceAllString(msg, "[redacted $1]")
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		msg = strings.ReplaceAll(msg, home, "~")
	}
	return msg
}
