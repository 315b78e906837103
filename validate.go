package escrow

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var denomPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9/:._-]{2,127}$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	v.RegisterAlias("address", "min=3,max=90,alphanum,lowercase")
	_ = v.RegisterValidation("denom", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag
		return denomPattern.MatchString(fl.Field().String())
	})
	return v
}

// validateStruct runs the struct tags of op and converts failures into
// ValidationError values.
func (e *Escrow) validateStruct(op any) error {
	if err := e.validate.Struct(op); err != nil {
		return validationErrors(err)
	}
	return nil
}

func (e *Escrow) validateAddress(field, addr string) error {
	if err := e.validate.Var(addr, "required,address"); err != nil {
		return ValidationError{Field: field, Message: fmt.Sprintf("%q is not a valid address", addr)}
	}
	return nil
}

func (e *Escrow) validateDenom(denom string) error {
	if err := e.validate.Var(denom, "required,denom"); err != nil {
		return ValidationError{Field: "token", Message: fmt.Sprintf("%q is not a valid denom", denom)}
	}
	return nil
}

func validationErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if len(verrs) == 1 {
		return ValidationError{Field: verrs[0].Field(), Message: validationMessage(verrs[0])}
	}
	var multi MultiError
	for _, fe := range verrs {
		multi.Add(ValidationError{Field: fe.Field(), Message: validationMessage(fe)})
	}
	return multi
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "address":
		return "must be a lowercase alphanumeric address of 3 to 90 characters"
	case "denom":
		return "must be a valid denom"
	}
	return "is invalid"
}
