package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/datallboy/gosplice/internal/segment"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("media_url", validateMediaURL)
}

// Struct validates s against its `validate` tags. Failures come back as one
// readable error naming each field.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// MediaURL checks a segment URL or URL template.
func MediaURL(raw string) error {
	if err := validate.Var(raw, "required,media_url"); err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	return nil
}

// validateMediaURL accepts absolute http(s) URLs. The index placeholder is
// substituted first so templates parse like the URLs they expand to.
func validateMediaURL(fl validator.FieldLevel) bool {
	raw := strings.ReplaceAll(fl.Field().String(), segment.Placeholder, "1")

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	return u.Host != ""
}
