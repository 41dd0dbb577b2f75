package errorformat

import (
	"fmt"
	"regexp"
)

// CompilePattern compiles a raw user-supplied errorformat pattern (the
// -e/--errorformat flag) as a Go regular expression with named capture
// groups "file" and "line" required, "col"/"end_line"/"end_col"
// optional, matching the same group contract as a built-in Recipe's
// Anchor.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatternError, err)
	}
	var hasFile, hasLine bool
	for _, name := range re.SubexpNames() {
		switch name {
		case "file":
			hasFile = true
		case "line":
			hasLine = true
		}
	}
	if !hasFile || !hasLine {
		return nil, fmt.Errorf("%w: pattern must define named groups \"file\" and \"line\"", ErrPatternError)
	}
	return re, nil
}
