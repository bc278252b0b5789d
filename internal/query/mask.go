package query

import (
	"fmt"
	"strings"
)

// FieldMask selects which optional fields a WhereIsOne/WhereAreOne caller
// wants populated, per spec.md §6.1's comma-separated "swhid,anchor,origin"
// mask. An empty mask on the wire means "everything" (AllFields), matching
// the CLI and gRPC facades' default behavior.
type FieldMask struct {
	SWHID  bool
	Anchor bool
	Origin bool
}

// AllFields is the mask applied when a request carries none.
func AllFields() FieldMask {
	return FieldMask{SWHID: true, Anchor: true, Origin: true}
}

// ParseFieldMask decodes a comma-separated mask string. An empty string
// yields AllFields.
func ParseFieldMask(s string) (FieldMask, error) {
	if s == "" {
		return AllFields(), nil
	}
	var m FieldMask
	for _, field := range strings.Split(s, ",") {
		switch strings.TrimSpace(field) {
		case "swhid":
			m.SWHID = true
		case "anchor":
			m.Anchor = true
		case "origin":
			m.Origin = true
		default:
			return FieldMask{}, fmt.Errorf("query: unknown field mask entry %q", field)
		}
	}
	return m, nil
}
