package domain

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GUID is a stable 64-bit opaque identifier for an asset, entity, or batch.
// The zero value is the reserved "invalid" GUID.
type GUID uint64

// InvalidGUID is the reserved value representing "no identity".
const InvalidGUID GUID = 0

// NewGUID mints a fresh, practically-unique GUID by folding a random UUIDv4
// down to 64 bits. Collisions are astronomically unlikely for a single
// process's lifetime, which is the only scope this identifier needs to span.
func NewGUID() GUID {
	for {
		u := uuid.New()
		g := GUID(binary.BigEndian.Uint64(u[:8]) ^ binary.BigEndian.Uint64(u[8:]))
		if g.Valid() {
			return g
		}
	}
}

// Valid reports whether g is not the reserved invalid value.
func (g GUID) Valid() bool { return g != InvalidGUID }

// String renders the canonical lowercase hex form of the GUID.
func (g GUID) String() string {
	if !g.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%016x", uint64(g))
}

// Less provides a total order over GUIDs, used for closure sort+dedup.
func (g GUID) Less(other GUID) bool { return uint64(g) < uint64(other) }

// ParseGUID parses the canonical string form produced by GUID.String.
func ParseGUID(s string) (GUID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "invalid" {
		return InvalidGUID, nil
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return InvalidGUID, fmt.Errorf("parse guid %q: %w", s, err)
	}
	return GUID(v), nil
}

// MarshalJSON renders the GUID as its canonical string form.
func (g GUID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(g.String())), nil
}

// UnmarshalJSON parses the canonical string form produced by MarshalJSON.
func (g *GUID) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("unmarshal guid: %w", err)
	}
	parsed, err := ParseGUID(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// SortGUIDs sorts and deduplicates a slice of GUIDs in place, returning the
// trimmed slice. Used to normalize asset closures before persistence.
func SortGUIDs(guids []GUID) []GUID {
	if len(guids) < 2 {
		return guids
	}
	// insertion sort is fine here: closures are small (hundreds, not millions)
	for i := 1; i < len(guids); i++ {
		for j := i; j > 0 && guids[j].Less(guids[j-1]); j-- {
			guids[j], guids[j-1] = guids[j-1], guids[j]
		}
	}
	out := guids[:1]
	for _, g := range guids[1:] {
		if out[len(out)-1] != g {
			out = append(out, g)
		}
	}
	return out
}
