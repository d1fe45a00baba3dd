package errors

import (
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidationError(t *testing.T) {
	// Test NewValidationError
	err := NewValidationError("test_field", "test message", "test_value")

	if err.Field != "test_field" {
		t.Errorf("Expected field to be 'test_field', got '%s'", err.Field)
	}

	if err.Message != "test message" {
		t.Errorf("Expected message to be 'test message', got '%s'", err.Message)
	}

	if err.Value != "test_value" {
		t.Errorf("Expected value to be 'test_value', got '%v'", err.Value)
	}

	// Test Error method
	expected := "validation error on field 'test_field': test message"
	if err.Error() != expected {
		t.Errorf("Expected error message to be '%s', got '%s'", expected, err.Error())
	}
}

func TestValidationErrors(t *testing.T) {
	// Test empty ValidationErrors
	var errs ValidationErrors
	if errs.Error() != "validation failed" {
		t.Errorf("Expected 'validation failed' for empty errors, got '%s'", errs.Error())
	}

	// Test single ValidationError
	errs = append(errs, *NewValidationError("field1", "message1", nil))
	expected := "validation failed: field1 message1"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for single error, got '%s'", expected, errs.Error())
	}

	// Test multiple ValidationErrors
	errs = append(errs, *NewValidationError("field2", "message2", nil))
	expected = "validation failed: 2 field errors"
	if errs.Error() != expected {
		t.Errorf("Expected '%s' for multiple errors, got '%s'", expected, errs.Error())
	}
}

type answerRequest struct {
	Kind  string `validate:"required,oneof=choice text rating video"`
	Value *int   `validate:"omitempty,min=1,max=10"`
}

func TestToValidationErrors(t *testing.T) {
	v := validator.New()
	tooBig := 42

	err := v.Struct(answerRequest{Kind: "essay", Value: &tooBig})
	errs := ToValidationErrors(err)

	if len(errs) != 2 {
		t.Fatalf("Expected 2 validation errors, got %d", len(errs))
	}
	if errs[0].Rule != "oneof" || errs[0].Message != "must be one of: choice text rating video" {
		t.Errorf("Unexpected first error: %+v", errs[0])
	}
	if errs[1].Rule != "max" || errs[1].Message != "must be at most 10" {
		t.Errorf("Unexpected second error: %+v", errs[1])
	}
}

func TestToValidationErrors_Wrapped(t *testing.T) {
	err := validator.New().Struct(answerRequest{})
	errs := ToValidationErrors(fmt.Errorf("bind: %w", err))

	if len(errs) != 1 || errs[0].Rule != "required" || errs[0].Message != "is required" {
		t.Errorf("Unexpected errors: %+v", errs)
	}
}

func TestToValidationErrors_NonValidatorError(t *testing.T) {
	if errs := ToValidationErrors(nil); len(errs) != 0 {
		t.Errorf("Expected no errors for nil input, got %d", len(errs))
	}
	if errs := ToValidationErrors(fmt.Errorf("boom")); len(errs) != 0 {
		t.Errorf("Expected no errors for plain error, got %d", len(errs))
	}
}
