package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxClientIDLen = 20
	maxNamesLen    = 120
	maxAddressLen  = 200
	maxPhoneLen    = 30
)

// Client ids double as directory names under the staging area, so they must
// never contain separators or be "." / "..".
var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

type Client struct {
	ID        string
	Names     string
	Address   string
	Phone     string
	Photo1URL *string
	Photo2URL *string
	Photo3URL *string
}

func ValidateClientID(id string) error {
	if id == "" || len(id) > maxClientIDLen || !clientIDPattern.MatchString(id) {
		return ErrInvalidKey
	}
	return nil
}

func (c Client) Validate() error {
	verr := &ValidationError{}
	if err := ValidateClientID(c.ID); err != nil {
		verr.Add("ci", "must be 1-20 characters of letters, digits, '.', '_' or '-'")
	}
	checkText(verr, "names", c.Names, maxNamesLen)
	checkText(verr, "address", c.Address, maxAddressLen)
	checkText(verr, "phone", c.Phone, maxPhoneLen)
	return verr.OrNil()
}

func checkText(verr *ValidationError, field, value string, max int) {
	if strings.TrimSpace(value) == "" {
		verr.Add(field, "is required")
		return
	}
	if utf8.RuneCountInString(value) > max {
		verr.Add(field, "is too long")
	}
}

// ClientUpdate carries the mutable fields of a client. Nil photo URLs keep the stored value.
type ClientUpdate struct {
	Names     string
	Address   string
	Phone     string
	Photo1URL *string
	Photo2URL *string
	Photo3URL *string
}

func (u ClientUpdate) Apply(c Client) Client {
	c.Names = u.Names
	c.Address = u.Address
	c.Phone = u.Phone
	if u.Photo1URL != nil {
		c.Photo1URL = u.Photo1URL
	}
	if u.Photo2URL != nil {
		c.Photo2URL = u.Photo2URL
	}
	if u.Photo3URL != nil {
		c.Photo3URL = u.Photo3URL
	}
	return c
}
