package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sukryu/auth-service/internal/errs"
	"github.com/sukryu/auth-service/internal/model"
)

const (
	maxUsernameLen = 20
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit in bytes
)

// usernameRe allows letters, digits, apostrophes and periods, with single inner spaces.
var usernameRe = regexp.MustCompile(`^[\p{L}\p{N}'.]+(?: [\p{L}\p{N}'.]+)*$`)

func validateEmail(email string) error {
	if email == "" {
		return errs.Invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		return errs.Invalid("email", "must be a valid address")
	}
	return nil
}

func validateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return errs.Invalid("username", "is required")
	}
	if n > maxUsernameLen {
		return errs.Invalid("username", "must be at most 20 characters")
	}
	if !usernameRe.MatchString(name) {
		return errs.Invalid("username", "may contain only letters, digits, apostrophes, periods and single spaces")
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return errs.Invalid("password", "must be at least 8 characters")
	}
	if len(pw) > maxPasswordLen {
		return errs.Invalid("password", "must be at most 72 bytes")
	}
	if pw[0] == '.' || pw[0] == '\n' {
		return errs.Invalid("password", "must not start with a period or newline")
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case !unicode.IsSpace(r) && !unicode.IsLetter(r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return errs.Invalid("password", "needs an upper-case letter, a lower-case letter, a digit and a special character")
	}
	return nil
}

func validateNewUser(in model.NewUser) error {
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

func validatePatch(p model.UserPatch) error {
	if p.Email != nil {
		if err := validateEmail(*p.Email); err != nil {
			return err
		}
	}
	if p.Username != nil {
		if err := validateUsername(*p.Username); err != nil {
			return err
		}
	}
	if p.Password != nil {
		if err := validatePassword(*p.Password); err != nil {
			return err
		}
	}
	if p.Roles != nil {
		if len(*p.Roles) == 0 {
			return errs.Invalid("roles", "must not be empty")
		}
		for _, r := range *p.Roles {
			if !r.Valid() {
				return errs.Invalid("roles", "unknown role "+string(r))
			}
		}
	}
	return nil
}
