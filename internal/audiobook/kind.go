package audiobook

import "fmt"

// Kind identifies the construction variant chosen for a manifest.
type Kind int

const (
	OpenAccess Kind = iota
	Overdrive
	FindawayDelegated
	LCP
)

var kindNames = [...]string{
	OpenAccess:        "open-access",
	Overdrive:         "overdrive",
	FindawayDelegated: "delegated",
	LCP:               "lcp",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind converts the String form back into a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return OpenAccess, fmt.Errorf("unknown audiobook kind %q", s)
}
