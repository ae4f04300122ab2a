package model

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// ValidationError reports input that was rejected before any request was
// issued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance returns the shared validator with the domain rules
// registered. validator.Validate caches struct metadata and is safe for
// concurrent use.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("notblank", validators.NotBlank)
		_ = v.RegisterValidation("complaint_status", func(fl validator.FieldLevel) bool {
			return Status(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("complaint_priority", func(fl validator.FieldLevel) bool {
			return Priority(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("icon_size", func(fl validator.FieldLevel) bool {
			return len(fl.Field().String()) <= MaxIconLength
		})
		_ = v.RegisterValidation("unique_sub_ids", validateUniqueSubIDs)
		validate = v
	})
	return validate
}

func validateUniqueSubIDs(fl validator.FieldLevel) bool {
	subs, ok := fl.Field().Interface().([]SubCategory)
	if !ok {
		return false
	}
	seen := make(map[string]bool, len(subs))
	for _, sc := range subs {
		if sc.ID == "" {
			continue
		}
		if seen[sc.ID] {
			return false
		}
		seen[sc.ID] = true
	}
	return true
}

// Validate checks v against its struct tags and converts the first
// failure into a ValidationError.
func Validate(v interface{}) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	return &ValidationError{
		Field:   fieldPath(fe.Namespace()),
		Message: describe(fe),
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must not exceed %s characters", fe.Param())
	case "complaint_status":
		return fmt.Sprintf("has unknown status %q", fe.Value())
	case "complaint_priority":
		return fmt.Sprintf("has unknown priority %q", fe.Value())
	case "icon_size":
		return "must not exceed 50KB"
	case "unique_sub_ids":
		return "contains duplicate subcategory ids"
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// ValidateStatusUpdate applies the resolution-note rule on top of the
// struct tags.
func ValidateStatusUpdate(u StatusUpdate) error {
	if err := Validate(u); err != nil {
		return err
	}
	if u.Status != StatusPending && strings.TrimSpace(u.Resolution) == "" {
		return Invalid("Resolution", "is required unless status is pending")
	}
	return nil
}
