package util

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// Errors collects multiple errors so configuration problems can be reported
// all at once instead of one per restart.
type Errors []error

func (e Errors) Error() string {
	s := make([]string, len(e))
	for i, err := range e {
		s[i] = err.Error()
	}
	return strings.Join(s, "\n")
}

// Add appends err to the list if it is non-nil.
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// ErrOrNil returns nil if nothing was collected.
func (e Errors) ErrOrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// ValidPort checks that port is numeric and returns it in ":port" form.
func ValidPort(port string) (string, error) {
	port = strings.TrimPrefix(port, ":")
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("given port %s is not a valid number", port)
	}
	return ":" + port, nil
}

// EmailDomain returns the lowercased ASCII (punycode) form of the domain part
// of address, or "" if there isn't one that converts cleanly. Used to tag
// logs without recording the full address.
func EmailDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	ascii, err := idna.ToASCII(strings.ToLower(strings.TrimSpace(address[at+1:])))
	if err != nil {
		return ""
	}
	return ascii
}
