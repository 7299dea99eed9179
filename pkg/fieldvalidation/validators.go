package fieldvalidation

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kbase/groups-sub003/pkg/core"
)

// ValidatorBuilder constructs a validator from its configured parameters.
type ValidatorBuilder func(params map[string]string) (Validator, error)

// BuiltinValidators returns the builders shipped with the service.
func BuiltinValidators() map[string]ValidatorBuilder {
	return map[string]ValidatorBuilder{
		"string": newStringValidator,
		"int":    newIntValidator,
		"enum":   newEnumValidator,
		"url":    newURLValidator,
	}
}

func invalid(field, format string, args ...interface{}) error {
	return &core.FieldValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// stringValidator checks length bounds and an optional regexp.
type stringValidator struct {
	maxLength int
	pattern   *regexp.Regexp
}

func newStringValidator(params map[string]string) (Validator, error) {
	v := &stringValidator{maxLength: 5000}
	if raw, ok := params["max-length"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("max-length must be a positive integer, got %q", raw)
		}
		v.maxLength = n
	}
	if raw, ok := params["pattern"]; ok {
		p, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		v.pattern = p
	}
	return v, nil
}

func (v *stringValidator) Validate(value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("string", "value may not be empty")
	}
	if len([]rune(value)) > v.maxLength {
		return invalid("string", "value exceeds maximum length %d", v.maxLength)
	}
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return invalid("string", "value contains control characters")
		}
	}
	if v.pattern != nil && !v.pattern.MatchString(value) {
		return invalid("string", "value does not match %s", v.pattern)
	}
	return nil
}

// intValidator checks the value parses as an integer within bounds.
type intValidator struct {
	min *int64
	max *int64
}

func newIntValidator(params map[string]string) (Validator, error) {
	v := &intValidator{}
	if raw, ok := params["min"]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("min must be an integer, got %q", raw)
		}
		v.min = &n
	}
	if raw, ok := params["max"]; ok {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("max must be an integer, got %q", raw)
		}
		v.max = &n
	}
	return v, nil
}

func (v *intValidator) Validate(value string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return invalid("int", "value %q is not an integer", value)
	}
	if v.min != nil && n < *v.min {
		return invalid("int", "value %d is below minimum %d", n, *v.min)
	}
	if v.max != nil && n > *v.max {
		return invalid("int", "value %d is above maximum %d", n, *v.max)
	}
	return nil
}

// enumValidator checks the value is one of a fixed set.
type enumValidator struct {
	allowed map[string]bool
	values  string
}

func newEnumValidator(params map[string]string) (Validator, error) {
	raw, ok := params["values"]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("enum validator requires a values parameter")
	}
	allowed := map[string]bool{}
	for _, v := range strings.Split(raw, ",") {
		allowed[strings.TrimSpace(v)] = true
	}
	return &enumValidator{allowed: allowed, values: raw}, nil
}

func (v *enumValidator) Validate(value string) error {
	if !v.allowed[value] {
		return invalid("enum", "value %q is not one of %s", value, v.values)
	}
	return nil
}

// urlValidator checks the value is an absolute http(s) URL.
type urlValidator struct{}

func newURLValidator(params map[string]string) (Validator, error) {
	return &urlValidator{}, nil
}

func (v *urlValidator) Validate(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return invalid("url", "value is not a URL: %v", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return invalid("url", "value must be an absolute http or https URL")
	}
	if u.Host == "" {
		return invalid("url", "value has no host")
	}
	return nil
}
