// Package selection names the host text buffers clipwatch can observe.
package selection

import (
	"fmt"
	"strings"
)

// Kind identifies which selection buffer a watcher or event concerns.
type Kind int

const (
	// Clipboard is the explicit copy/paste buffer (CLIPBOARD on X11).
	Clipboard Kind = iota
	// Primary is the select-to-copy buffer (PRIMARY on X11/Wayland).
	Primary
)

// Kinds lists every supported selection in watcher start order.
var Kinds = []Kind{Clipboard, Primary}

func (k Kind) String() string {
	switch k {
	case Clipboard:
		return "clipboard"
	case Primary:
		return "primary"
	default:
		return fmt.Sprintf("selection(%d)", int(k))
	}
}

// ParseKind converts a user-supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clipboard", "c":
		return Clipboard, nil
	case "primary", "p":
		return Primary, nil
	default:
		return 0, fmt.Errorf("unknown selection %q", s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k != Clipboard && k != Primary {
		return nil, fmt.Errorf("unknown selection %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
