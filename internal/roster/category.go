// Package roster holds the world permission roster and its PSC text codec.
package roster

import (
	"fmt"
	"strings"
)

// Category is one of the fixed permission groups of the world.
type Category int

const (
	Securiter Category = iota
	Bar
	DJ
	Dieux
	Admin
	BannedPlayers

	numCategories
)

// categoryInfo is the wire token and permission expression written in the section marker.
type categoryInfo struct {
	token      string
	expression string
}

var categoryTable = [numCategories]categoryInfo{
	Securiter:     {token: "SECURITER", expression: "secu"},
	Bar:           {token: "BAR", expression: "bar"},
	DJ:            {token: "DJ", expression: "dj"},
	Dieux:         {token: "DIEUX", expression: "dj+bar+secu+spe"},
	Admin:         {token: "ADMIN", expression: "dj+bar+secu"},
	BannedPlayers: {token: "BANNEDPLAYERS", expression: "Banned"},
}

// Categories returns every category in canonical file order.
func Categories() []Category {
	cats := make([]Category, 0, numCategories)
	for c := Category(0); c < numCategories; c++ {
		cats = append(cats, c)
	}
	return cats
}

// Addable returns the categories offered to operators for additions.
// DIEUX is managed by hand in the file and never offered.
func Addable() []Category {
	cats := make([]Category, 0, numCategories-1)
	for _, c := range Categories() {
		if c != Dieux {
			cats = append(cats, c)
		}
	}
	return cats
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c >= 0 && c < numCategories
}

// String returns the wire token, e.g. "SECURITER".
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryTable[c].token
}

// Expression returns the permission expression written after the category
// in its section marker. It is opaque metadata.
func (c Category) Expression() string {
	if !c.Valid() {
		return ""
	}
	return categoryTable[c].expression
}

// Protected reports whether removals from c are always rejected.
func (c Category) Protected() bool {
	return c == Dieux
}

// ParseCategory maps a wire token to its Category. Matching is exact.
func ParseCategory(token string) (Category, error) {
	for c := Category(0); c < numCategories; c++ {
		if categoryTable[c].token == token {
			return c, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrInvalidCategory, token)
}

// ParseCategoryFold is ParseCategory for operator input: surrounding space is
// dropped and case is ignored.
func ParseCategoryFold(input string) (Category, error) {
	return ParseCategory(strings.ToUpper(strings.TrimSpace(input)))
}

// MarshalText implements encoding.TextMarshaler so categories render as
// tokens in JSON and YAML output.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
