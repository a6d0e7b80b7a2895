package validator

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/clinic-api/pkg/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Engine returns the shared validator, reporting json field names.
func Engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// Errors collects validation failures so a whole object is checked in one
// pass and reported as a single ValidationError.
type Errors []string

func (e *Errors) Add(format string, args ...interface{}) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

// Struct runs tag validation on obj and appends every failure.
func (e *Errors) Struct(obj interface{}) {
	err := Engine().Struct(obj)
	if err == nil {
		return
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		e.Add("%v", err)
		return
	}
	for _, fe := range verrs {
		*e = append(*e, message(fe))
	}
}

// Err returns nil when nothing was collected.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return apperrors.Validation(e...)
}

// Validate is a shorthand for tag-only validation.
func Validate(obj interface{}) error {
	var errs Errors
	errs.Struct(obj)
	return errs.Err()
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must not contain duplicates", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
