package qpack

import "fmt"

// HeaderField is a single name/value pair as it appears on the wire:
// opaque byte strings, never null-terminated.
type HeaderField struct {
	Name  string
	Value string

	// Sensitive marks a field (e.g. "authorization", "cookie") that must
	// always be encoded as a literal, never inserted into the dynamic
	// table or indexed, so it never leaks via table-state side channels.
	Sensitive bool
}

func (h HeaderField) size() int {
	// RFC 9204 3.2.1: each entry's size is name+value octets plus 32.
	return len(h.Name) + len(h.Value) + 32
}

func isPseudo(name string) bool {
	return len(name) > 0 && name[0] == ':'
}

// ValidateFieldOrder enforces that pseudo-headers precede regular
// headers within one field section (RFC 9114 §4.3).
func ValidateFieldOrder(fields []HeaderField) error {
	seenRegular := false
	for _, f := range fields {
		if isPseudo(f.Name) {
			if seenRegular {
				return fmt.Errorf("qpack: pseudo-header %q after regular header", f.Name)
			}
			continue
		}
		seenRegular = true
	}
	return nil
}
