package authsync

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse partner phone numbers without a country prefix.
const DefaultPhoneRegion = "IN"

// Validate checks the login form.
func (c Credentials) Validate() error {
	return validationFailure(validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	))
}

// Validate checks the user register form.
func (r UserRegistration) Validate() error {
	return validationFailure(validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	))
}

// Validate checks the partner register form. A missing avatar is reported on
// its own so the form can show the upload hint.
func (r PartnerRegistration) Validate() error {
	if r.Avatar == nil || r.Avatar.Content == nil {
		return newFailure(ErrValidation, MessageMissingAvatar, nil, map[string]any{
			"fields": map[string]string{"avatar": "is required"},
		})
	}

	return validationFailure(validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.ContactName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Phone, validation.Required, validation.By(ValidatePhone(DefaultPhoneRegion))),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.Address, validation.Required, validation.Length(1, 500)),
	))
}

// ValidatePhone returns a rule accepting numbers phonenumbers considers valid for region.
func ValidatePhone(region string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return errors.New("must be a valid phone number")
		}
		if !phonenumbers.IsValidNumber(num) {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

func validationFailure(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "unable to validate payload")
	}

	fields := make(map[string]string, len(fieldErrs))
	for name, fieldErr := range fieldErrs {
		if fieldErr != nil {
			fields[name] = fieldErr.Error()
		}
	}

	return newFailure(ErrValidation, fieldErrs.Error(), err, map[string]any{
		"fields": fields,
	})
}
