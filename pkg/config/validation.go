package config

import (
	"reflect"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond the `required` tag. [Loader.Load] calls Validate after the
// required fields have been verified.
//
// Errors that already are [*sserr.Error] are returned unchanged; anything
// else is wrapped with [sserr.CodeValidation].
//
//	func (c *RestartSettings) Validate() error {
//	    if c.Budget < 0 {
//	        return sserr.Newf(sserr.CodeValidationRange,
//	            "config: restart budget %d must not be negative", c.Budget)
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := checkRequired(rv, ""); err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, isTyped := sserr.AsError(err); isTyped {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
}

// checkRequired walks the struct and reports the first `required:"true"`
// field that is still zero. path is the dotted field path used in the
// message, e.g. "Redis.Addr".
func checkRequired(rv reflect.Value, path string) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		sf := rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := checkRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}

		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}

	return nil
}
