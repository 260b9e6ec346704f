package validate

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ErrField struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

type Errs []ErrField

// Error joins the field messages with ", ".
func (e Errs) Error() string {
	msgs := make([]string, len(e))
	for i, ef := range e {
		msgs[i] = ef.Msg
	}
	return strings.Join(msgs, ", ")
}

// UserFields is a submitted user payload. A nil field was not submitted.
type UserFields struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
}

type rule struct {
	tag string
	msg string
}

type fieldRules struct {
	name  string
	value func(UserFields) *string
	rules []rule
}

// MaxPasswordBytes is the most bcrypt will hash.
const MaxPasswordBytes = 72

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	// maxbytes counts UTF-8 bytes where max counts characters.
	_ = val.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	return val
}

// Order here is the order of messages in Errs.
var userRules = []fieldRules{
	{
		name:  "firstName",
		value: func(f UserFields) *string { return f.FirstName },
		rules: []rule{
			{"required", "First name can not be blank"},
			{"min=3", "First name must be at least 3 characters long"},
			{"max=50", "First name cannot be longer than 50 characters"},
		},
	},
	{
		name:  "lastName",
		value: func(f UserFields) *string { return f.LastName },
		rules: []rule{
			{"required", "Last name can not be blank"},
			{"min=3", "Last name must be at least 3 characters long"},
			{"max=50", "Last name cannot be longer than 50 characters"},
		},
	},
	{
		name:  "email",
		value: func(f UserFields) *string { return f.Email },
		rules: []rule{
			{"required", "Email can not be blank"},
			{"email", "Email is not a valid email address"},
		},
	},
	{
		name:  "password",
		value: func(f UserFields) *string { return f.Password },
		rules: []rule{
			{"required", "Password can not be blank"},
			{"min=4", "Password must be at least 4 characters long"},
			{"max=50", "Password cannot be longer than 50 characters"},
			{"maxbytes=" + strconv.Itoa(MaxPasswordBytes), "Password cannot be longer than 72 bytes"},
		},
	},
}

// User checks the submitted fields. With partial set, fields that were not
// submitted are skipped; otherwise a missing field counts as blank.
// It returns nil or an Errs with one entry per invalid field.
func User(in UserFields, partial bool) error {
	var errs Errs
	for _, fr := range userRules {
		p := fr.value(in)
		if p == nil && partial {
			continue
		}
		var s string
		if p != nil {
			s = *p
		}
		if ef := check(fr, s); ef != nil {
			errs = append(errs, *ef)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func check(fr fieldRules, s string) *ErrField {
	for _, r := range fr.rules {
		value := s
		if r.tag == "required" {
			value = strings.TrimSpace(s)
		}
		if err := v.Var(value, r.tag); err != nil {
			return &ErrField{Field: fr.name, Msg: r.msg}
		}
	}
	return nil
}
