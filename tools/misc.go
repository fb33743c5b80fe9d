package tools

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/modfin/henry/slicez"
)

var varNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// ValidVarName reports whether name can be used as a template variable,
// i.e. as the inside of a {{name}} token.
func ValidVarName(name string) bool {
	return varNameRegexp.MatchString(name)
}

func ValidAddress(address string) error {
	if len(address) == 0 {
		return errors.New("an email address must be provided")
	}
	_, err := mail.ParseAddress(address)
	if err != nil {
		return errors.New("email " + address + " is not a valid email address")
	}
	return nil
}

// JoinVars and SplitVars encode a list of variable names into a single
// column. Names are validated against ValidVarName before storage, so a
// space is a safe separator.
func JoinVars(vars []string) string {
	return strings.Join(vars, " ")
}

func SplitVars(s string) []string {
	if len(s) == 0 {
		return nil
	}
	return strings.Split(s, " ")
}

// HasDuplicates reports whether the slice contains any repeated element.
func HasDuplicates(ss []string) bool {
	return len(slicez.Uniq(ss)) != len(ss)
}
