package manifest

import "strings"

// SplitFragment splits an href into the path and fragment identifier (without '#').
func SplitFragment(href string) (p, fragment string) {
	if href == "" {
		return "", ""
	}
	parts := strings.SplitN(href, "#", 2)
	p = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return p, fragment
}
