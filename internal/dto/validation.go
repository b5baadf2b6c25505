package dto

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var exerciseURLPattern = regexp.MustCompile(`^[\w\-.]*$`)

// RegisterValidators adds the custom rules used by the exercise payloads and reports
// fields by their json names.
func RegisterValidators(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	return v.RegisterValidation("exercise_url", func(fl validator.FieldLevel) bool {
		return exerciseURLPattern.MatchString(fl.Field().String())
	})
}

// ValidExerciseURL reports whether value is a usable url identifier.
func ValidExerciseURL(value string) bool {
	return exerciseURLPattern.MatchString(value)
}
