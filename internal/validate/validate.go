// Package validate applies semantic checks to captured field values.
package validate

import (
	"time"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Reason identifies why a value was rejected.
type Reason string

const (
	ReasonMissing       Reason = "missing"
	ReasonInvalidFormat Reason = "invalid_format"
	ReasonInvalidAge    Reason = "invalid_age"
	ReasonNotNumeric    Reason = "not_numeric"
	ReasonTooSmall      Reason = "too_small"
	ReasonTooLarge      Reason = "too_large"
)

// DateLayout accepts both D/M/YYYY and DD/MM/YYYY.
const DateLayout = "2/1/2006"

const (
	// MinimumAge is the youngest applicant accepted, in whole years.
	MinimumAge = 18
	// EarliestBirthYear rejects dates before this year.
	EarliestBirthYear = 1900
)

// Result is the outcome of a validation.
type Result struct {
	OK     bool
	Reason Reason
}

func accept() Result { return Result{OK: true} }

func reject(r Reason) Result { return Result{Reason: r} }

func (r Result) String() string {
	if r.OK {
		return "ok"
	}
	return string(r.Reason)
}

// Validator checks values against their field descriptors.
type Validator struct {
	now func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithClock overrides the time source used for age checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks value, as stored in the state document, against field.
// Fields other than date and currency are accepted once present.
func (v *Validator) Validate(field models.FieldDescriptor, value any) Result {
	if value == nil {
		return reject(ReasonMissing)
	}

	switch field.Type {
	case models.FieldTypeDate:
		return v.validateDate(value)
	case models.FieldTypeCurrency:
		return validateCurrency(field, value)
	default:
		return accept()
	}
}

func (v *Validator) validateDate(value any) Result {
	s, ok := value.(string)
	if !ok {
		return reject(ReasonInvalidFormat)
	}
	dt, err := time.Parse(DateLayout, s)
	if err != nil {
		return reject(ReasonInvalidFormat)
	}
	if dt.Year() < EarliestBirthYear {
		return reject(ReasonInvalidAge)
	}
	if age(dt, v.now()) < MinimumAge {
		return reject(ReasonInvalidAge)
	}
	return accept()
}

func validateCurrency(field models.FieldDescriptor, value any) Result {
	amount, ok := models.AsFloat64(value)
	if !ok {
		return reject(ReasonNotNumeric)
	}
	if field.Min != nil && amount < *field.Min {
		return reject(ReasonTooSmall)
	}
	if field.Max != nil && amount > *field.Max {
		return reject(ReasonTooLarge)
	}
	return accept()
}

// age returns completed years between birth and now.
func age(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}
