package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type invitePayload struct {
	Client  string `json:"client" validate:"required,email_or_uuid"`
	Message string `json:"message" validate:"omitempty,max=20"`
}

type profilePayload struct {
	FullName string `json:"full_name" validate:"notblank"`
}

func TestValidateStructSuccess(t *testing.T) {
	for _, client := range []string{"client@example.com", uuid.NewString()} {
		if err := ValidateStruct(invitePayload{Client: client}); err != nil {
			t.Fatalf("expected %q to validate, got %v", client, err)
		}
	}
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(invitePayload{Client: "Jane <jane@example.com>", Message: "a message that is far too long"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	vErrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(vErrs) != 2 {
		t.Fatalf("expected 2 validation errors, got %d: %v", len(vErrs), vErrs)
	}

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	if fields["client"] != "email_or_uuid" {
		t.Fatalf("expected client to fail email_or_uuid, got %v", fields)
	}
	if fields["message"] != "max" {
		t.Fatalf("expected message to fail max, got %v", fields)
	}
}

func TestNotBlankRejectsWhitespace(t *testing.T) {
	if err := ValidateStruct(profilePayload{FullName: "   "}); err == nil {
		t.Fatal("expected whitespace-only name to fail")
	}
	if err := ValidateStruct(profilePayload{FullName: "Ada"}); err != nil {
		t.Fatalf("expected name to validate, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("kcal", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() > 0
	})
	if err != nil {
		t.Fatalf("register validation: %v", err)
	}

	type custom struct {
		Energy int `validate:"kcal"`
	}

	if err := ValidateStruct(custom{Energy: 2000}); err != nil {
		t.Fatalf("expected validation to pass, got %v", err)
	}
	if err := ValidateStruct(custom{Energy: 0}); err == nil {
		t.Fatal("expected validation to fail for non-positive value")
	}
}
