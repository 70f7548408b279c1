package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Validation("bad input"), KindValidation},
		{Conflict("already done"), KindConflict},
		{InsufficientFunds("too poor"), KindInsufficientFunds},
		{NotFound("missing"), KindNotFound},
		{Unauthorized("no"), KindUnauthorized},
		{Storage("insert", errors.New("disk full")), KindStorage},
		{errors.New("plain"), KindStorage},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Errorf("KindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("approve completion: %w", Conflict("already approved"))
	if !Is(err, KindConflict) {
		t.Errorf("wrapped conflict lost its kind")
	}
}

func TestStorageUnwraps(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed")
	err := Storage("insert bid", cause)
	if !errors.Is(err, cause) {
		t.Error("expected Storage to wrap the cause")
	}
}

func TestMessageFormatting(t *testing.T) {
	err := Validation("bid must be lower than %dp", 150)
	if err.Error() != "validation: bid must be lower than 150p" {
		t.Errorf("got %q", err.Error())
	}
}
