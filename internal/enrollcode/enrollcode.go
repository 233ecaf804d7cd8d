// Package enrollcode derives the human readable codes printed on credentials
// and used as the default login handle of student accounts.
//
// A code has the layout INITIALS-YEAR-PERSON-ENROLLMENT, for example
// AMLG-2025-7-12. Initials are not unique; the enrollment id is.
package enrollcode

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Placeholder replaces initials when a name yields fewer than two letters.
const Placeholder = "MAT"

const tokensPerName = 2

var layout = regexp.MustCompile(`^\p{Lu}{2,4}-\d{4}-\d+-\d+$`)

// Initials takes the first letter of up to two given-name tokens followed by
// up to two family-name tokens, uppercased.
func Initials(givenNames, familyNames string) string {
	var b strings.Builder
	appendInitials(&b, givenNames)
	appendInitials(&b, familyNames)
	if len([]rune(b.String())) < 2 {
		return Placeholder
	}
	return b.String()
}

func appendInitials(b *strings.Builder, name string) {
	for i, token := range strings.Fields(name) {
		if i == tokensPerName {
			return
		}
		for _, r := range token {
			b.WriteRune(unicode.ToUpper(r))
			break
		}
	}
}

// Generate returns the enrollment code. It is deterministic and never fails.
func Generate(givenNames, familyNames string, schoolYear int, personID, enrollmentID int64) string {
	parts := []string{
		Initials(givenNames, familyNames),
		strconv.Itoa(schoolYear),
		strconv.FormatInt(personID, 10),
		strconv.FormatInt(enrollmentID, 10),
	}
	return strings.Join(parts, "-")
}

// Valid reports whether code follows the enrollment code layout.
func Valid(code string) bool {
	return layout.MatchString(code)
}
