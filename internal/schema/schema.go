// Package schema is the single authoritative definition of what a valid
// report submission looks like. Both the HTTP boundary and the report
// store validate against it, so the two layers cannot drift.
package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category classifies what a report is about.
type Category string

const (
	CategoryGameplayBug  Category = "gameplay-bug"
	CategoryVisualGlitch Category = "visual-glitch"
	CategoryExploitCheat Category = "exploit-cheat"
	CategoryAccountIssue Category = "account-issue"
	CategoryPerformance  Category = "performance"
	CategoryOther        Category = "other"
)

// AllCategories returns every accepted category.
func AllCategories() []Category {
	return []Category{
		CategoryGameplayBug,
		CategoryVisualGlitch,
		CategoryExploitCheat,
		CategoryAccountIssue,
		CategoryPerformance,
		CategoryOther,
	}
}

// Valid reports whether c is an accepted category.
func (c Category) Valid() bool {
	for _, k := range AllCategories() {
		if c == k {
			return true
		}
	}
	return false
}

// Platform identifies where the reported issue was observed.
type Platform string

const (
	PlatformPC      Platform = "pc"
	PlatformPS5     Platform = "ps5"
	PlatformXbox    Platform = "xbox"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// AllPlatforms returns every accepted platform.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformPC,
		PlatformPS5,
		PlatformXbox,
		PlatformAndroid,
		PlatformIOS,
	}
}

// Valid reports whether p is an accepted platform.
func (p Platform) Valid() bool {
	for _, k := range AllPlatforms() {
		if p == k {
			return true
		}
	}
	return false
}

// Field bounds shared by every validation point.
const (
	DescriptionMinRunes   = 10
	DescriptionMaxRunes   = 5000
	OtherCategoryMinRunes = 2
	OtherCategoryMaxRunes = 100
	MaxFiles              = 5
)

// Submission is the structured part of a report before it is persisted.
type Submission struct {
	Category      Category
	OtherCategory string
	Description   string
	Platform      Platform
}

// ValidationError reports a single field that failed validation. The
// message is safe to surface to clients.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Message
}

// Validate checks the submission against the schema. It returns the
// first failing field as a *ValidationError.
func (s Submission) Validate() error {
	if !s.Category.Valid() {
		return &ValidationError{Field: "category", Message: "unknown category"}
	}

	if s.Category == CategoryOther {
		n := utf8.RuneCountInString(strings.TrimSpace(s.OtherCategory))
		if n < OtherCategoryMinRunes || n > OtherCategoryMaxRunes {
			return &ValidationError{
				Field:   "otherCategory",
				Message: fmt.Sprintf("must be %d-%d characters when category is %q", OtherCategoryMinRunes, OtherCategoryMaxRunes, CategoryOther),
			}
		}
	} else if s.OtherCategory != "" {
		return &ValidationError{
			Field:   "otherCategory",
			Message: fmt.Sprintf("only allowed when category is %q", CategoryOther),
		}
	}

	n := utf8.RuneCountInString(strings.TrimSpace(s.Description))
	if n < DescriptionMinRunes {
		return &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("must be at least %d characters", DescriptionMinRunes),
		}
	}
	if n > DescriptionMaxRunes {
		return &ValidationError{
			Field:   "description",
			Message: fmt.Sprintf("must be at most %d characters", DescriptionMaxRunes),
		}
	}

	if !s.Platform.Valid() {
		return &ValidationError{Field: "platform", Message: "unknown platform"}
	}

	return nil
}
