package facade

import (
	"strings"

	"github.com/vrcwmt/worldperm/internal/roster"
)

// EmptyListing is shown when no category has members.
const EmptyListing = "No pseudonyms registered."

// Render formats a listing as plain text: a title, then one block per
// non-empty category with a bullet per pseudonym.
func Render(l roster.Listing) string {
	if l.Empty() {
		return EmptyListing
	}

	var b strings.Builder
	b.WriteString("Registered pseudonyms:\n")
	for _, s := range l.NonEmpty() {
		b.WriteString("\n")
		b.WriteString(s.Category.String())
		b.WriteString("\n")
		for _, p := range s.Members {
			b.WriteString("• ")
			b.WriteString(p)
			b.WriteString("\n")
		}
	}
	return b.String()
}
