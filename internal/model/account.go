package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/pkg/validator"
)

type Role string

const (
	RolePatient   Role = "patient"
	RoleSecretary Role = "secretary"
	RoleDoctor    Role = "doctor"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleSecretary, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

const (
	DefaultPhoto           = "default.jpg"
	DefaultRatingsAverage  = 1.0
	MaxAccountAgeYears     = 120
	phoneMinLength         = 10
	IDCardLength           = 10
	DefaultVisitRangeStart = "8:00"
	DefaultVisitRangeEnd   = "12:00"
)

var Specifications = []string{
	"general",
	"allergy and immunology",
	"anesthesiology",
	"cardiology",
	"colon and rectal surgery",
	"dermatology",
	"emergency medicine",
	"family medicine",
	"gastroenterology",
	"general surgery",
	"hematology/oncology",
	"internal medicine",
	"medical genetics and genomics",
	"neurosurgery",
	"nuclear medicine",
	"obstetrics and gynecology",
	"ophthalmology",
	"orthopaedic surgery",
	"otolaryngology - head and neck surgery",
	"pathology",
	"pediatrics",
	"physical medicine and rehabilitation",
	"plastic surgery",
	"preventive medicine",
	"psychiatry",
	"radiology",
	"thoracic and cardiac surgery",
	"urology",
}

func validSpecification(s string) bool {
	for _, spec := range Specifications {
		if spec == s {
			return true
		}
	}
	return false
}

var phonePrefix = regexp.MustCompile(`^(?:\+98|98|0)`)

// NormalizePhone strips the country or trunk prefix so the same number is
// stored once however it was typed.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	return phonePrefix.ReplaceAllString(phone, "")
}

// Account is identity and profile data. Secrets live in Credential.
type Account struct {
	Base
	Name          *string        `json:"name,omitempty" db:"name" validate:"omitempty,max=100"`
	Phone         *string        `json:"phone,omitempty" db:"phone"`
	NewPhone      *string        `json:"-" db:"new_phone"`
	Email         *string        `json:"email,omitempty" db:"email" validate:"omitempty,email,max=100"`
	EmailVerified bool           `json:"email_verified" db:"email_verified"`
	IDCard        *string        `json:"id_card,omitempty" db:"id_card"`
	Birthday      *time.Time     `json:"birthday,omitempty" db:"birthday"`
	Photo         string         `json:"photo" db:"photo"`
	Role          Role           `json:"role" db:"role"`
	Active        bool           `json:"-" db:"active"`
	DoctorID      *uuid.UUID     `json:"doctor_id,omitempty" db:"doctor_id"`
	DoctorOptions *DoctorOptions `json:"doctor_options,omitempty" db:"doctor_options" validate:"-"`
}

// MissingProfile lists the profile fields a patient needs before booking.
func (a *Account) MissingProfile() []string {
	var missing []string
	if a.Name == nil || strings.TrimSpace(*a.Name) == "" {
		missing = append(missing, "name")
	}
	if a.Birthday == nil {
		missing = append(missing, "birthday")
	}
	if a.IDCard == nil || *a.IDCard == "" {
		missing = append(missing, "id_card")
	}
	return missing
}

// Validate checks the whole account in one pass, including the rules that
// depend on role.
func (a *Account) Validate(now time.Time) error {
	var errs validator.Errors
	errs.Struct(a)

	if !a.Role.Valid() {
		errs.Add("role must be one of [patient secretary doctor admin]")
	}
	if a.Name != nil && len(strings.Fields(*a.Name)) < 2 {
		errs.Add("name must contain first and last name")
	}
	if a.Phone != nil && len(*a.Phone) < phoneMinLength {
		errs.Add("phone must be at least %d digits", phoneMinLength)
	}
	if a.IDCard != nil && len(*a.IDCard) != IDCardLength {
		errs.Add("id_card must be exactly %d characters", IDCardLength)
	}
	if a.Birthday != nil {
		if !a.Birthday.Before(now) {
			errs.Add("birthday must be in the past")
		} else if a.Birthday.Before(now.AddDate(-MaxAccountAgeYears, 0, 0)) {
			errs.Add("birthday must be within the last %d years", MaxAccountAgeYears)
		}
	}
	if a.Phone == nil && a.Email == nil {
		errs.Add("phone or email is required")
	}

	switch a.Role {
	case RoleDoctor:
		if a.DoctorOptions == nil {
			errs.Add("doctor_options is required for doctors")
		} else {
			a.DoctorOptions.collect(&errs)
		}
	default:
		if a.DoctorOptions != nil {
			errs.Add("only doctors can have doctor_options")
		}
	}
	switch a.Role {
	case RoleSecretary:
		if a.DoctorID == nil {
			errs.Add("doctor_id is required for secretaries")
		}
	default:
		if a.DoctorID != nil {
			errs.Add("only secretaries can reference a doctor")
		}
	}

	return errs.Err()
}

// DoctorOptions is stored as one jsonb document on the account row.
type DoctorOptions struct {
	Specification   string   `json:"specification"`
	MCNumber        string   `json:"mc_number"`
	VisitWeekdays   []int    `json:"visit_weekdays" validate:"unique,dive,gte=0,lte=6"`
	VisitRange      []string `json:"visit_range" validate:"omitempty,len=2"`
	VisitExceptions []string `json:"visit_exceptions" validate:"dive,datetime=2006-01-02"`
	RatingsAverage  float64  `json:"ratings_average"`
	RatingsQuantity int      `json:"ratings_quantity"`
}

// NewDoctorOptions returns options with the default daily range and ratings.
func NewDoctorOptions() *DoctorOptions {
	return &DoctorOptions{
		VisitWeekdays:   []int{},
		VisitRange:      []string{DefaultVisitRangeStart, DefaultVisitRangeEnd},
		VisitExceptions: []string{},
		RatingsAverage:  DefaultRatingsAverage,
	}
}

func (o *DoctorOptions) Validate() error {
	var errs validator.Errors
	o.collect(&errs)
	return errs.Err()
}

func (o *DoctorOptions) collect(errs *validator.Errors) {
	errs.Struct(o)
	if o.Specification == "" {
		errs.Add("specification is required for doctors")
	} else if !validSpecification(o.Specification) {
		errs.Add("specification is not a valid specification")
	}
	if o.MCNumber == "" {
		errs.Add("mc_number is required for doctors")
	}
	if len(o.VisitRange) == 2 {
		start, err1 := ParseMinuteOfDay(o.VisitRange[0])
		end, err2 := ParseMinuteOfDay(o.VisitRange[1])
		switch {
		case err1 != nil || err2 != nil:
			errs.Add("visit_range must be two H:MM values")
		case start > end:
			errs.Add("visit_range start must not be after end")
		}
	}
}

// Range returns the daily window in minutes of day, falling back to the
// default range when unset.
func (o *DoctorOptions) Range() (start, end int, err error) {
	r := o.VisitRange
	if len(r) != 2 {
		r = []string{DefaultVisitRangeStart, DefaultVisitRangeEnd}
	}
	if start, err = ParseMinuteOfDay(r[0]); err != nil {
		return 0, 0, err
	}
	if end, err = ParseMinuteOfDay(r[1]); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// ParseMinuteOfDay accepts "H:MM", "HH:MM" or a bare minute count. The
// whole input must be consumed.
func ParseMinuteOfDay(s string) (int, error) {
	s = strings.TrimSpace(s)
	if hours, minutes, ok := strings.Cut(s, ":"); ok {
		h, herr := strconv.Atoi(hours)
		m, merr := strconv.Atoi(minutes)
		if herr != nil || merr != nil || len(hours) > 2 || len(minutes) != 2 ||
			h < 0 || h > 23 || m < 0 || m > 59 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		return h*60 + m, nil
	}
	m, err := strconv.Atoi(s)
	if err != nil || m < 0 || m >= 24*60 {
		return 0, fmt.Errorf("invalid minute of day %q", s)
	}
	return m, nil
}

func (o DoctorOptions) Value() (driver.Value, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (o *DoctorOptions) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return errors.New("doctor_options: unsupported scan type")
	}
}

// AccountFilter narrows account listings. Inactive accounts are never listed.
type AccountFilter struct {
	Role          Role
	Specification string
	Pagination
}

type UpdateMeRequest struct {
	Name     *string    `json:"name"`
	Email    *string    `json:"email"`
	IDCard   *string    `json:"id_card"`
	Birthday *time.Time `json:"birthday"`
}

type UpdateDoctorRequest struct {
	Specification   *string  `json:"specification"`
	MCNumber        *string  `json:"mc_number"`
	VisitWeekdays   []int    `json:"visit_weekdays"`
	VisitRange      []string `json:"visit_range"`
	VisitExceptions []string `json:"visit_exceptions"`
}

type CreateAccountRequest struct {
	Name          string         `json:"name" binding:"required"`
	Phone         *string        `json:"phone"`
	Email         *string        `json:"email"`
	IDCard        *string        `json:"id_card"`
	Birthday      *time.Time     `json:"birthday"`
	Role          Role           `json:"role" binding:"required"`
	DoctorID      *uuid.UUID     `json:"doctor_id"`
	DoctorOptions *DoctorOptions `json:"doctor_options"`
}
