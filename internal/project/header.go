package project

import "strings"

// HeaderWidth is the width of a framed header line.
const HeaderWidth = 80

// Header centres message in a line of dashes HeaderWidth wide, after prefix.
// The extra dash of an odd split goes to the right.
func Header(message, prefix string) string {
	spaces := HeaderWidth - len(prefix) - len(message)
	if spaces < 0 {
		spaces = 0
	}
	n := spaces / 2
	return prefix + strings.Repeat("-", n) + message + strings.Repeat("-", spaces-n)
}
