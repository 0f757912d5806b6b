package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/nlstn/go-adminrest/internal/metadata"
)

type Account struct {
	ID       int     `json:"id"`
	Login    string  `json:"login" admin:"required,maxlength=8"`
	Nickname *string `json:"nickname" gorm:"not null"`
	Bio      string  `json:"bio" admin:"maxlength=5"`
	Age      int     `json:"age" admin:"required"`
}

type Coupon struct {
	ID      int    `json:"id"`
	Code    string `json:"code"`
	Percent int    `json:"percent"`
}

func (c *Coupon) Validate(ctx context.Context) error {
	if c.Percent > 100 {
		return &ConstraintViolationError{Errors: []FieldError{{
			Field:          "percent",
			RejectedValue:  c.Percent,
			Code:           "Max",
			Arguments:      []interface{}{100},
			DefaultMessage: "must be less than or equal to {3}",
		}}}
	}
	if c.Code == "BLOCKED" {
		return errors.New("coupon is blocked")
	}
	return nil
}

func analyze(t *testing.T, entity interface{}) *metadata.EntityMetadata {
	t.Helper()
	meta, err := metadata.AnalyzeEntity(entity)
	if err != nil {
		t.Fatalf("AnalyzeEntity failed: %v", err)
	}
	return meta
}

func TestValidateFacets(t *testing.T) {
	meta := analyze(t, Account{})

	nick := "ace"
	valid := &Account{Login: "ace", Nickname: &nick, Bio: "hi"}
	if err := Validate(context.Background(), meta, valid); err != nil {
		t.Fatalf("Validate(valid) = %v, want nil", err)
	}

	invalid := &Account{Login: "  ", Bio: "too long"}
	err := Validate(context.Background(), meta, invalid)
	var violations *ConstraintViolationError
	if !errors.As(err, &violations) {
		t.Fatalf("Validate error = %v, want *ConstraintViolationError", err)
	}
	if len(violations.Errors) != 3 {
		t.Fatalf("Errors = %+v, want 3", violations.Errors)
	}

	byField := map[string]FieldError{}
	for _, fe := range violations.Errors {
		byField[fe.Field] = fe
	}
	if fe := byField["login"]; fe.Code != CodeNotNull || fe.ObjectName != "account" {
		t.Errorf("login error = %+v", fe)
	}
	if fe := byField["nickname"]; fe.Code != CodeNotNull {
		t.Errorf("nickname error = %+v", fe)
	}
	fe := byField["bio"]
	if fe.Code != CodeSize || fe.RejectedValue != "too long" {
		t.Errorf("bio error = %+v", fe)
	}
	args := fe.MessageArguments()
	if len(args) != 5 || args[0] != "account" || args[1] != "bio" || args[4] != 5 {
		t.Errorf("MessageArguments = %v", args)
	}
	if _, ok := byField["age"]; ok {
		t.Error("zero numbers must not be reported as missing")
	}
}

func TestValidateEntityHook(t *testing.T) {
	meta := analyze(t, Coupon{})

	err := Validate(context.Background(), meta, &Coupon{Code: "X", Percent: 150})
	var violations *ConstraintViolationError
	if !errors.As(err, &violations) || len(violations.Errors) != 1 {
		t.Fatalf("Validate error = %v", err)
	}
	if fe := violations.Errors[0]; fe.Code != "Max" || fe.ObjectName != "coupon" {
		t.Errorf("hook error = %+v", fe)
	}

	err = Validate(context.Background(), meta, &Coupon{Code: "BLOCKED"})
	if !errors.As(err, &violations) || violations.Errors[0].Code != CodeInvalid || violations.Errors[0].Field != "" {
		t.Fatalf("Validate error = %v, want entity-level Invalid", err)
	}
	if violations.Errors[0].DefaultMessage != "coupon is blocked" {
		t.Errorf("DefaultMessage = %q", violations.Errors[0].DefaultMessage)
	}
}

func TestConstraintViolationErrorMessage(t *testing.T) {
	err := &ConstraintViolationError{}
	if err.HasErrors() {
		t.Fatal("empty error reports violations")
	}
	err.Reject(FieldError{Field: "name", Code: CodeNotNull})
	err.Reject(FieldError{Code: CodeInvalid})
	if got, want := err.Error(), "validation failed: name: NotNull, Invalid"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
