package tools

import (
	"strings"
)

// parseDoc splits a method doc into the tool description and per-parameter
// descriptions. The "Args:" section, when present, is consumed and does not
// appear in the returned description.
func parseDoc(doc string) (description string, params map[string]string) {
	params = map[string]string{}

	lines := strings.Split(doc, "\n")
	argsAt := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "Args:" {
			argsAt = i
			break
		}
	}

	if argsAt < 0 {
		return strings.TrimSpace(doc), params
	}

	description = strings.TrimSpace(strings.Join(lines[:argsAt], "\n"))

	// Parameter lines are "name: text"; indented continuation lines
	// extend the previous parameter.
	current := ""
	for _, line := range lines[argsAt+1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		name, rest, ok := strings.Cut(trimmed, ":")
		name = strings.TrimSpace(name)
		if ok && name != "" && !strings.Contains(name, " ") {
			current = name
			params[current] = strings.TrimSpace(rest)
			continue
		}
		if current != "" {
			params[current] += " " + trimmed
		}
	}

	return description, params
}
