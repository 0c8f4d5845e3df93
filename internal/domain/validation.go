package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	apperrors "github.com/hchapman/WBOR-sub000/pkg/errors"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		// Report fields by their json names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Keys validate as their encoded form; an incomplete key counts as
		// missing.
		validate.RegisterCustomTypeFunc(func(v reflect.Value) any {
			k, ok := v.Interface().(persistence.Key)
			if !ok || k.Incomplete() {
				return ""
			}
			return k.Encode()
		}, persistence.Key{})
		rules := map[string]validator.Func{
			"slug": func(fl validator.FieldLevel) bool {
				return slugPattern.MatchString(fl.Field().String())
			},
			"notblank": func(fl validator.FieldLevel) bool {
				return strings.TrimSpace(fl.Field().String()) != ""
			},
		}
		for tag, fn := range rules {
			if err := validate.RegisterValidation(tag, fn); err != nil {
				panic(fmt.Sprintf("register %s validation: %v", tag, err))
			}
		}
	})
	return validate
}

// Validate checks the struct tags of an entity and reports failures as a
// validation error naming every offending field.
func Validate(entity any) error {
	err := getValidator().Struct(entity)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidation("invalid entity", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperrors.NewValidation(strings.Join(msgs, "; "), err)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "slug":
		return fmt.Sprintf("%s must be lowercase letters, digits and hyphens", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
