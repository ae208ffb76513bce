package roster

import (
	"fmt"
	"sort"
	"strings"
)

// Roster maps every category to its set of pseudonyms.
// The zero value is not usable; call New.
type Roster struct {
	sets [numCategories]map[string]struct{}
}

// New returns a roster with all categories present and empty.
func New() *Roster {
	r := &Roster{}
	for c := range r.sets {
		r.sets[c] = make(map[string]struct{})
	}
	return r
}

// Op is the kind of mutation carried by a Request.
type Op int

const (
	OpAdd Op = iota + 1
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// MarshalText encodes the op as "add" or "remove".
func (o Op) MarshalText() ([]byte, error) {
	if o != OpAdd && o != OpRemove {
		return nil, fmt.Errorf("unknown roster operation %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText accepts "add" or "remove".
func (o *Op) UnmarshalText(text []byte) error {
	switch string(text) {
	case "add":
		*o = OpAdd
	case "remove":
		*o = OpRemove
	default:
		return fmt.Errorf("unknown roster operation %q", text)
	}
	return nil
}

// Request is a single mutation handed to Apply.
type Request struct {
	Op        Op
	Category  Category
	Pseudonym string
}

// Outcome describes what Apply did.
type Outcome struct {
	// Pseudonym is the normalized (trimmed) pseudonym.
	Pseudonym string
	// Changed is false when the request was a no-op.
	Changed bool
}

// Apply validates and applies req. Nothing is modified when an error is returned.
func (r *Roster) Apply(req Request) (Outcome, error) {
	switch req.Op {
	case OpAdd:
		return r.add(req.Category, req.Pseudonym)
	case OpRemove:
		return r.remove(req.Category, req.Pseudonym)
	default:
		return Outcome{}, fmt.Errorf("unknown roster operation %v", req.Op)
	}
}

// Add inserts p into category c. Adding an existing member is a no-op.
func (r *Roster) Add(c Category, p string) error {
	_, err := r.add(c, p)
	return err
}

// Remove discards p from category c. Removing an absent member is a no-op.
// Removal from DIEUX always fails with ErrProtectedCategory.
func (r *Roster) Remove(c Category, p string) error {
	_, err := r.remove(c, p)
	return err
}

func (r *Roster) add(c Category, p string) (Outcome, error) {
	if !c.Valid() {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidCategory, c)
	}
	name, err := NormalizePseudonym(p)
	if err != nil {
		return Outcome{}, err
	}
	if _, ok := r.sets[c][name]; ok {
		return Outcome{Pseudonym: name}, nil
	}
	r.sets[c][name] = struct{}{}
	return Outcome{Pseudonym: name, Changed: true}, nil
}

func (r *Roster) remove(c Category, p string) (Outcome, error) {
	if !c.Valid() {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidCategory, c)
	}
	if c.Protected() {
		return Outcome{}, fmt.Errorf("%w: %v", ErrProtectedCategory, c)
	}
	name := strings.TrimSpace(p)
	if _, ok := r.sets[c][name]; !ok {
		return Outcome{Pseudonym: name}, nil
	}
	delete(r.sets[c], name)
	return Outcome{Pseudonym: name, Changed: true}, nil
}

// MaxPseudonymLen is the longest pseudonym accepted, in bytes.
const MaxPseudonymLen = 256

// NormalizePseudonym trims p and checks that it can be stored in the PSC
// file without changing meaning on the next decode.
func NormalizePseudonym(p string) (string, error) {
	name := strings.TrimSpace(p)
	switch {
	case name == "":
		return "", ErrInvalidPseudonym
	case len(name) > MaxPseudonymLen:
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidPseudonym, MaxPseudonymLen)
	case strings.ContainsAny(name, "\r\n"):
		return "", fmt.Errorf("%w: contains a line break", ErrInvalidPseudonym)
	case strings.HasPrefix(name, commentPrefix), strings.HasPrefix(name, markerPrefix):
		return "", fmt.Errorf("%w: %q reads as a header line", ErrInvalidPseudonym, name)
	}
	return name, nil
}

// Contains reports whether p is a member of c.
func (r *Roster) Contains(c Category, p string) bool {
	if !c.Valid() {
		return false
	}
	_, ok := r.sets[c][strings.TrimSpace(p)]
	return ok
}

// CategoriesOf returns the categories p belongs to, in canonical order.
func (r *Roster) CategoriesOf(p string) []Category {
	name := strings.TrimSpace(p)
	var cats []Category
	for c := range r.sets {
		if _, ok := r.sets[c][name]; ok {
			cats = append(cats, Category(c))
		}
	}
	return cats
}

// Members returns the members of c sorted lexicographically.
func (r *Roster) Members(c Category) []string {
	if !c.Valid() {
		return nil
	}
	members := make([]string, 0, len(r.sets[c]))
	for p := range r.sets[c] {
		members = append(members, p)
	}
	sort.Strings(members)
	return members
}

// Len returns the number of members in c.
func (r *Roster) Len(c Category) int {
	if !c.Valid() {
		return 0
	}
	return len(r.sets[c])
}

// Total returns the number of memberships across all categories.
func (r *Roster) Total() int {
	n := 0
	for c := range r.sets {
		n += len(r.sets[c])
	}
	return n
}

// Clone returns a deep copy.
func (r *Roster) Clone() *Roster {
	out := New()
	for c := range r.sets {
		for p := range r.sets[c] {
			out.sets[c][p] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both rosters hold the same members per category.
func (r *Roster) Equal(other *Roster) bool {
	for c := range r.sets {
		if len(r.sets[c]) != len(other.sets[c]) {
			return false
		}
		for p := range r.sets[c] {
			if _, ok := other.sets[c][p]; !ok {
				return false
			}
		}
	}
	return true
}

// Section is one category of a Listing.
type Section struct {
	Category Category `json:"category" yaml:"category"`
	Members  []string `json:"members" yaml:"members"`
}

// Listing is a sorted snapshot of the roster, one section per category.
type Listing struct {
	Sections []Section `json:"sections" yaml:"sections"`
}

// List returns every category in canonical order with sorted members.
func (r *Roster) List() Listing {
	l := Listing{Sections: make([]Section, 0, numCategories)}
	for _, c := range Categories() {
		l.Sections = append(l.Sections, Section{Category: c, Members: r.Members(c)})
	}
	return l
}

// Total returns the number of memberships in the listing.
func (l Listing) Total() int {
	n := 0
	for _, s := range l.Sections {
		n += len(s.Members)
	}
	return n
}

// Empty is the explicit "no pseudonyms at all" indicator.
func (l Listing) Empty() bool {
	return l.Total() == 0
}

// NonEmpty returns only the sections that have members.
func (l Listing) NonEmpty() []Section {
	var out []Section
	for _, s := range l.Sections {
		if len(s.Members) > 0 {
			out = append(out, s)
		}
	}
	return out
}
