package forms

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Violations maps field names to error messages for a full-form summary.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Rule evaluates one field value and returns an error message, or "" when valid.
type Rule func(value string) string

const dateLayout = "02/01/2006"

var digitsOnly = regexp.MustCompile(`\D`)

// Required rejects empty values.
func Required(value string) string {
	if strings.TrimSpace(value) == "" {
		return "campo obrigatório"
	}
	return ""
}

// PositiveNumber rejects values that are not numbers greater than zero.
func PositiveNumber(value string) string {
	n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return "deve ser um número"
	}
	if n <= 0 {
		return "deve ser maior que zero"
	}
	return ""
}

// MaxNumber bounds a numeric field, e.g. discard quantity by available stock.
func MaxNumber(max float64) Rule {
	return func(value string) string {
		n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return "deve ser um número"
		}
		if n > max {
			return fmt.Sprintf("deve ser no máximo %g", max)
		}
		return ""
	}
}

// DateNotPast expects dd/mm/yyyy and rejects dates before today.
func DateNotPast(value string) string {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return "data inválida (use dd/mm/aaaa)"
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if parsed.Before(today) {
		return "Data de validade não pode ser no passado"
	}
	return ""
}

// CEP expects exactly 8 digits after stripping formatting characters.
func CEP(value string) string {
	digits := digitsOnly.ReplaceAllString(value, "")
	if len(digits) != 8 {
		return "CEP deve ter 8 dígitos"
	}
	return ""
}

type field struct {
	rules   []Rule
	value   string
	touched bool
}

// Form tracks field values, touched state and per-field rules. Validation runs
// eagerly on every Set; errors surface only for touched fields so an untouched
// empty form shows no messages.
type Form struct {
	fields map[string]*field
	order  []string
}

// New creates an empty form.
func New() *Form {
	return &Form{fields: make(map[string]*field)}
}

// Add declares a field with its rules. Declaring twice replaces the rules.
func (f *Form) Add(name string, rules ...Rule) *Form {
	if _, ok := f.fields[name]; !ok {
		f.order = append(f.order, name)
	}
	f.fields[name] = &field{rules: rules}
	return f
}

// Set stores a value and marks the field touched.
func (f *Form) Set(name, value string) {
	fl, ok := f.fields[name]
	if !ok {
		fl = &field{}
		f.fields[name] = fl
		f.order = append(f.order, name)
	}
	fl.value = value
	fl.touched = true
}

// Value returns the current value of a field.
func (f *Form) Value(name string) string {
	if fl, ok := f.fields[name]; ok {
		return fl.value
	}
	return ""
}

// Touched reports whether the field was ever set.
func (f *Form) Touched(name string) bool {
	fl, ok := f.fields[name]
	return ok && fl.touched
}

// FieldError returns the first violated rule's message for a touched field.
// Untouched fields never report errors.
func (f *Form) FieldError(name string) string {
	fl, ok := f.fields[name]
	if !ok || !fl.touched {
		return ""
	}
	return evaluate(fl)
}

// Valid reports whether every field passes its rules, touched or not. This is
// what gates the submit control.
func (f *Form) Valid() bool {
	for _, name := range f.order {
		if evaluate(f.fields[name]) != "" {
			return false
		}
	}
	return true
}

// Validate re-checks the whole form and returns a summary keyed by field name.
// Used at submit time in case client-side disablement was bypassed.
func (f *Form) Validate() Violations {
	v := make(Violations)
	for _, name := range f.order {
		if msg := evaluate(f.fields[name]); msg != "" {
			v[name] = msg
		}
	}
	return v
}

func evaluate(fl *field) string {
	for _, rule := range fl.rules {
		if msg := rule(fl.value); msg != "" {
			return msg
		}
	}
	return ""
}
