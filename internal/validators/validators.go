// Package validators checks input before it reaches a store.
package validators

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	appErr "github.com/foundernet/engine/pkg/errors"
)

var validate = validator.New()

// Struct validates v by its `validate` tags. Failures are invalid errors
// carrying the offending fields.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid input")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+":"+fe.Tag())
	}
	return appErr.Wrap(err, appErr.CodeInvalid, "invalid "+strings.Join(fields, ", ")).
		WithMeta("fields", fields)
}

// Email trims, lower-cases and NFC-normalises s and checks its syntax.
func Email(s string) (string, error) {
	e := strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
	if e == "" {
		return "", appErr.Invalid("email is required").WithMeta("field", "email")
	}
	if err := validate.Var(e, "email,max=254"); err != nil {
		return "", appErr.Wrap(err, appErr.CodeInvalid, fmt.Sprintf("email %q is not a valid address", e)).
			WithMeta("field", "email")
	}
	return e, nil
}

// IdentityID parses an identity id. The nil UUID is rejected.
func IdentityID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, appErr.Wrap(err, appErr.CodeInvalid, fmt.Sprintf("identity id %q is not a UUID", s)).
			WithMeta("field", "identity_id")
	}
	if id == uuid.Nil {
		return uuid.Nil, appErr.Invalid("identity id must not be the nil UUID").WithMeta("field", "identity_id")
	}
	return id, nil
}

// Password enforces the sign-up password rules.
func Password(s string) error {
	if err := validate.Var(s, "required,min=8,max=72"); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "password must be 8 to 72 characters").
			WithMeta("field", "password")
	}
	return nil
}
