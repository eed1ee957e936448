package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"servicemarket/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate returns field -> failed tag, or nil when v is valid.
func Validate(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

// Struct is Validate as an error wrapping domain.ErrValidation.
func Struct(v any) error {
	fields := Validate(v)
	if fields == nil {
		return nil
	}

	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, field+"="+tag)
	}
	sort.Strings(parts)
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(parts, ", "))
}
