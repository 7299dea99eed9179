package fieldvalidation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kbase/groups-sub003/pkg/core"
)

// Validator checks a single field value. A failed check returns
// core.FieldValidationError; an infrastructure fault while checking (e.g.
// an unreachable lookup service) returns any other error and means the
// value could not be judged either way.
type Validator interface {
	Validate(value string) error
}

// FieldKey is a validated custom field name: a lowercase alphanumeric
// name, optionally followed by a dash and a number ("question-3"), so a
// configured field may repeat.
type FieldKey string

const maxFieldKeyLength = 50

// NewFieldKey validates a raw field key.
func NewFieldKey(key string) (FieldKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", &core.MissingParameterError{Param: "field key"}
	}
	if len([]rune(key)) > maxFieldKeyLength {
		return "", &core.IllegalParameterError{
			Msg: fmt.Sprintf("field key %s exceeds %d characters", key, maxFieldKeyLength)}
	}
	name, num, hasNum := strings.Cut(key, "-")
	if !isFieldName(name) {
		return "", &core.IllegalParameterError{
			Msg: fmt.Sprintf("illegal character in field key %s", key)}
	}
	if hasNum && !isNumber(num) {
		return "", &core.IllegalParameterError{
			Msg: fmt.Sprintf("field key suffix must be a number in %s", key)}
	}
	return FieldKey(key), nil
}

// Name returns the field key without any numbered suffix. Validator
// bindings are keyed by name, so "question-3" binds to the "question"
// validator.
func (k FieldKey) Name() string {
	name, _, _ := strings.Cut(string(k), "-")
	return name
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// FieldConfig describes one configured field.
type FieldConfig struct {
	// Validator selects the validator implementation by name.
	Validator string `yaml:"validator"`
	// Parameters configure the validator.
	Parameters map[string]string `yaml:"parameters"`
	// NumberedAllowed permits numbered instances of the field
	// ("question-1", "question-2").
	NumberedAllowed bool `yaml:"numbered"`
	// UserField marks the field as per-member rather than per-group.
	UserField bool `yaml:"user"`
}

// Registry holds the validator bound to each configured field name.
type Registry struct {
	fields map[string]boundField
}

type boundField struct {
	validator Validator
	config    FieldConfig
}

// NewRegistry builds a registry from field configurations, constructing
// each named validator through the builder set.
func NewRegistry(fields map[string]FieldConfig, builders map[string]ValidatorBuilder) (*Registry, error) {
	bound := make(map[string]boundField, len(fields))
	for name, cfg := range fields {
		if _, err := NewFieldKey(name); err != nil {
			return nil, fmt.Errorf("invalid field name %s: %w", name, err)
		}
		if strings.Contains(name, "-") {
			return nil, fmt.Errorf("configured field name %s may not carry a numbered suffix", name)
		}
		builder, ok := builders[cfg.Validator]
		if !ok {
			return nil, fmt.Errorf("field %s names unknown validator %s", name, cfg.Validator)
		}
		v, err := builder(cfg.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to build validator for field %s: %w", name, err)
		}
		bound[name] = boundField{validator: v, config: cfg}
	}
	return &Registry{fields: bound}, nil
}

// ValidateField checks a field key and value against the configuration.
// userField selects between the per-member and per-group field namespaces.
func (r *Registry) ValidateField(key string, value string, userField bool) error {
	fk, err := NewFieldKey(key)
	if err != nil {
		return err
	}
	field, ok := r.fields[fk.Name()]
	if !ok {
		return &core.IllegalParameterError{Msg: fmt.Sprintf("unknown field %s", key)}
	}
	if field.config.UserField != userField {
		return &core.IllegalParameterError{Msg: fmt.Sprintf("unknown field %s", key)}
	}
	if fk.Name() != string(fk) && !field.config.NumberedAllowed {
		return &core.IllegalParameterError{
			Msg: fmt.Sprintf("field %s may not be numbered", fk.Name())}
	}
	if err := field.validator.Validate(value); err != nil {
		if _, ok := err.(*core.FieldValidationError); ok {
			return err
		}
		return fmt.Errorf("validator for field %s unavailable: %w", key, err)
	}
	return nil
}

// ValidateAll checks a field update map. Nil values are removals and skip
// value validation, but the key must still be well formed.
func (r *Registry) ValidateAll(fields map[string]*string, userField bool) error {
	for key, value := range fields {
		if value == nil {
			if _, err := NewFieldKey(key); err != nil {
				return err
			}
			continue
		}
		if err := r.ValidateField(key, *value, userField); err != nil {
			return err
		}
	}
	return nil
}
