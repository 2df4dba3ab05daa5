package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// errBadBody is a malformed request body.
type errBadBody struct{ err error }

func (e errBadBody) Error() string { return "bad json: " + e.err.Error() }

// validationErrors lists failed field rules.
type validationErrors []string

func (e validationErrors) Error() string { return strings.Join(e, "; ") }

// decodeJSONBody decodes and validates a request body.
func decodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return errBadBody{err}
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return validationErrors{err.Error()}
	}
	out := make(validationErrors, 0, len(errs))
	for _, fe := range errs {
		out = append(out, fmt.Sprintf("%s %s", fe.Field(), validationMessage(fe)))
	}
	sort.Strings(out)
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "datetime":
		return fmt.Sprintf("must be a date (%s)", fe.Param())
	}
	return "is invalid"
}

// decode writes the response for a body that fails to decode and reports
// whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	err := decodeJSONBody(r, dest)
	switch e := err.(type) {
	case nil:
		return true
	case validationErrors:
		writeValidation(w, e)
	default:
		http.Error(w, "bad json", http.StatusBadRequest)
	}
	return false
}
