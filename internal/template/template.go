// Package template substitutes named ${placeholder} values into notification
// subject and body strings.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Render replaces every ${name} placeholder in tmpl with values[name].
// A placeholder with no corresponding value fails the render; the caller
// treats that as a delivery failure, not as silent passthrough.
func Render(tmpl string, values map[string]string) (string, error) {
	var missing []string

	rendered := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := values[name]
		if !ok {
			missing = append(missing, name)
			return match
		}
		return v
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("undeclared template placeholder(s): %s", strings.Join(missing, ", "))
	}
	return rendered, nil
}
