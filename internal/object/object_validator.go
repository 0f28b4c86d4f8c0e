package object

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// ErrInvalidObject is wrapped by every validation failure
var ErrInvalidObject = errors.New("invalid object")

// Validator: schema validation and markup rejection for drawable objects.
// Payloads are relayed verbatim, so strings are checked, never rewritten.
type Validator struct {
	validate  *validator.Validate
	sanitizer *bluemonday.Policy
}

func NewValidator() *Validator {
	return &Validator{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Validate checks an object against the schema of its kind
func (v *Validator) Validate(o Object) error {
	var target interface{}
	switch o.Kind {
	case KindLine:
		if o.Line == nil {
			return fmt.Errorf("%w: missing line data", ErrInvalidObject)
		}
		if !AllowedLineTools[o.Line.Tool] {
			return fmt.Errorf("%w: unsupported tool %q", ErrInvalidObject, o.Line.Tool)
		}
		target = o.Line
	case KindImage:
		if o.Image == nil {
			return fmt.Errorf("%w: missing image data", ErrInvalidObject)
		}
		target = o.Image
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidObject, o.Kind)
	}

	if err := v.validate.Struct(target); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}

	if o.Kind == KindLine && len(o.Line.Points)%2 != 0 {
		return fmt.Errorf("%w: 'points' must hold coordinate pairs", ErrInvalidObject)
	}

	return v.rejectMarkup(markupFields(o))
}

// ValidatePageKey checks a page identifier
func (v *Validator) ValidatePageKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: 'pageKey' is required", ErrInvalidObject)
	}
	if len(key) > MaxPageKeyLength {
		return fmt.Errorf("%w: 'pageKey' too long", ErrInvalidObject)
	}
	return v.rejectMarkup(map[string]string{"pageKey": key})
}

// ValidateObjectID checks an object identifier sent without its object
func (v *Validator) ValidateObjectID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: 'objectId' is required", ErrInvalidObject)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%w: 'objectId' too long", ErrInvalidObject)
	}
	return v.rejectMarkup(map[string]string{"objectId": id})
}

// rejectMarkup fails when the strict policy would alter any of the values
func (v *Validator) rejectMarkup(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		if value == "" {
			continue
		}
		if v.sanitizer.Sanitize(value) != value {
			return fmt.Errorf("%w: '%s' contains markup", ErrInvalidObject, name)
		}
	}
	return nil
}

// formatValidationErrors reports the first failing field
func formatValidationErrors(errs validator.ValidationErrors) error {
	return fmt.Errorf("%w: %s", ErrInvalidObject, formatSingleError(errs[0]))
}

func formatSingleError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "min", "max":
		return fmt.Sprintf("'%s' value out of allowed range", field)
	case "datauri|url", "url", "datauri":
		return fmt.Sprintf("'%s' must be a data URI or URL", field)
	case "oneof":
		return fmt.Sprintf("'%s' must be one of [%s]", field, err.Param())
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}
