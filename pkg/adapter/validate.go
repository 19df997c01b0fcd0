package adapter

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest marks a malformed canonical request.
var ErrInvalidRequest = errors.New("invalid request")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct checks v's validate tags. Failures wrap ErrInvalidRequest
// and name the offending fields.
func ValidateStruct(v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

// Validate checks the structural invariants of a request: a model id, a
// known mode, a non-empty turn sequence with valid roles and at least one
// non-system turn.
func (r Request) Validate() error {
	if err := ValidateStruct(r); err != nil {
		return err
	}
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			return nil
		}
	}
	return fmt.Errorf("%w: no user or assistant turn", ErrInvalidRequest)
}

// CurrentUserTurn returns the last user turn, which is the one being answered.
func (r Request) CurrentUserTurn() (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}
