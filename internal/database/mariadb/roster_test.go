package mariadb

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestWrapQueryError(t *testing.T) {
	missing := &mysql.MySQLError{Number: errNoSuchTable, Message: "Table 'sis.courses' doesn't exist"}
	err := wrapQueryError("query courses", missing)
	if !errors.Is(err, missing) {
		t.Errorf("wrapped error lost its cause: %v", err)
	}
	if !strings.Contains(err.Error(), "registration schema missing") {
		t.Errorf("expected schema hint, got %q", err)
	}

	other := errors.New("connection refused")
	err = wrapQueryError("query courses", other)
	if !errors.Is(err, other) || strings.Contains(err.Error(), "schema") {
		t.Errorf("unexpected wrapping: %v", err)
	}
}

func TestNewPool_InvalidDSN(t *testing.T) {
	if _, err := NewPool(""); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := NewPool("not a dsn"); err == nil {
		t.Error("expected error for malformed DSN")
	}
}
