package lib

import "strings"

const escape = `\`

// VerifyDelimiter translates a folder name from one hierarchy delimiter to another.
// An expected delimiter found inside a component is escaped with a backslash,
// so the translation can be reversed without loss.
func VerifyDelimiter(name, existingDelimiter, expectedDelimiter string) string {
	if existingDelimiter == expectedDelimiter || existingDelimiter == "" || expectedDelimiter == "" {
		return name
	}
	components := SplitFolder(name, existingDelimiter)
	for i, component := range components {
		components[i] = strings.ReplaceAll(component, expectedDelimiter, escape+expectedDelimiter)
	}
	return strings.Join(components, expectedDelimiter)
}

// SplitFolder splits a folder name on every delimiter not escaped by a backslash,
// and removes the escaping from the components.
func SplitFolder(name, delimiter string) []string {
	if delimiter == "" {
		return []string{name}
	}
	components := make([]string, 0, strings.Count(name, delimiter)+1)
	current := strings.Builder{}
	for i := 0; i < len(name); {
		if strings.HasPrefix(name[i:], escape+delimiter) {
			current.WriteString(delimiter)
			i += len(escape) + len(delimiter)
			continue
		}
		if strings.HasPrefix(name[i:], delimiter) {
			components = append(components, current.String())
			current.Reset()
			i += len(delimiter)
			continue
		}
		current.WriteByte(name[i])
		i++
	}
	return append(components, current.String())
}
