// Package schema checks feed data before it is written or after it is read.
package schema

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"feeds_reader/internal/model"
)

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	// Item is the index of the offending item, or -1 for feed-level fields.
	Item   int
	Errors map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, e.Errors[f])
	}
	if e.Item >= 0 {
		return fmt.Sprintf("validation failed: item %d: %s", e.Item, strings.Join(msgs, ", "))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(msgs, ", "))
}

// Validator wraps the go-playground validator configured for feed types.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator that reports JSON field names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Meta validates feed-level fields.
func (v *Validator) Meta(m *model.FeedMetadata) error {
	return v.check(m, -1)
}

// Item validates a single item.
func (v *Validator) Item(it *model.FeedItem) error {
	return v.check(it, -1)
}

// Content validates the feed metadata and every item. The first invalid item
// is reported.
func (v *Validator) Content(c *model.FeedContent) error {
	if err := v.Meta(&c.FeedMetadata); err != nil {
		return err
	}
	for i := range c.Items {
		if err := v.check(&c.Items[i], i); err != nil {
			return err
		}
	}
	return nil
}

// Subscription validates one subscription list entry.
func (v *Validator) Subscription(s *model.Subscription) error {
	return v.check(s, -1)
}

func (v *Validator) check(obj any, item int) error {
	err := v.v.Struct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	return newValidationError(verrs, item)
}

func newValidationError(errs validator.ValidationErrors, item int) *ValidationError {
	out := make(map[string]string, len(errs))
	for _, err := range errs {
		field := err.Field()
		switch err.Tag() {
		case "required":
			out[field] = fmt.Sprintf("%s is required", field)
		case "url":
			out[field] = fmt.Sprintf("%s must be a valid URL", field)
		case "gte":
			out[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return &ValidationError{Item: item, Errors: out}
}
