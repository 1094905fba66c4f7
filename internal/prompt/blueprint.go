package prompt

import "regexp"

// Factorio blueprint exchange strings are a "0" version byte followed by
// base64 of zlib-compressed JSON. Replies usually wrap them in a code
// fence, so the scan just looks for the longest plausible run.
var blueprintRe = regexp.MustCompile(`0[A-Za-z0-9+/]{40,}={0,2}`)

// ExtractBlueprint applies the mode's post-processing rule to a reply.
// For blueprint-capable modes it returns the first delimited blueprint
// string found; extraction failure is not an error, the result is simply
// empty.
func (m Mode) ExtractBlueprint(reply string) string {
	if !m.BlueprintCapable() {
		return ""
	}
	return FindBlueprint(reply)
}

// FindBlueprint scans any text for a blueprint exchange string, returning
// the first match or "".
func FindBlueprint(text string) string {
	return blueprintRe.FindString(text)
}
