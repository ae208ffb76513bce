package roster

import "errors"

var (
	// ErrInvalidCategory indicates a category outside the fixed set.
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidPseudonym indicates a pseudonym that is empty once trimmed.
	ErrInvalidPseudonym = errors.New("invalid pseudonym")

	// ErrProtectedCategory indicates an attempted removal from DIEUX.
	ErrProtectedCategory = errors.New("category is protected against removal")
)
