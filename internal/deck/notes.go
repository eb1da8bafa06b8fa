package deck

import (
	"fmt"
	"strings"
)

// slideIDKey is the notes key that ties a generated slide back to its plan
// entry. Reordering and cleanup in the finalize stage key off this value,
// so it must survive round-trips through saves and edits.
const slideIDKey = "slide_id"

// ParseNotes reads the slide notes as tolerant key-value metadata: one
// "key: value" pair per line. Lines without a colon are ignored.
func ParseNotes(notes string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(notes, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

// SlideID returns the slide_id recorded in the slide's notes, or "".
func (s *Slide) SlideID() string {
	return ParseNotes(s.Notes)[slideIDKey]
}

// SetSlideID writes the slide_id into the notes, replacing an existing
// entry while preserving unrelated lines.
func (s *Slide) SetSlideID(id string) {
	var kept []string
	for _, line := range strings.Split(s.Notes, "\n") {
		key, _, found := strings.Cut(line, ":")
		if found && strings.TrimSpace(key) == slideIDKey {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept, fmt.Sprintf("%s: %s", slideIDKey, id))
	s.Notes = strings.Join(kept, "\n")
}

// SlideIDIndex maps slide_id to slide position for every slide that
// carries one. Slides without an id are absent from the map.
func (d *Deck) SlideIDIndex() map[string]int {
	out := make(map[string]int)
	for i := range d.Slides {
		if id := d.Slides[i].SlideID(); id != "" {
			out[id] = i
		}
	}
	return out
}
