package deck

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Deck is the JSON presentation artifact. Templates and generated decks
// share this shape; generation clones template slides and rewrites their
// elements.
type Deck struct {
	Title  string  `json:"title,omitempty"`
	Theme  string  `json:"theme,omitempty"`
	Slides []Slide `json:"slides"`
}

// Slide is one page of a deck. Notes carry machine-readable key-value
// metadata, including the slide_id planted during generation.
type Slide struct {
	Layout   string    `json:"layout,omitempty"`
	Notes    string    `json:"notes,omitempty"`
	Elements []Element `json:"elements"`
}

// Element is one addressable box on a slide. Geometry is in slide pixels.
type Element struct {
	ID       string  `json:"id"`
	Role     string  `json:"role,omitempty"`
	Text     string  `json:"text,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	FontSize float64 `json:"font_size,omitempty"`
	ImageRef string  `json:"image_ref,omitempty"`
}

// Load reads a deck artifact from disk.
func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck %s: %w", path, err)
	}

	var deck Deck
	if err := json.Unmarshal(data, &deck); err != nil {
		return nil, fmt.Errorf("failed to parse deck %s: %w", path, err)
	}
	return &deck, nil
}

// Save writes the deck to disk, creating parent directories. The write
// goes through a temp file and rename so a crash never leaves a partial
// artifact.
func Save(deck *Deck, path string) error {
	data, err := json.MarshalIndent(deck, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deck: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create deck directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".deck-*.json")
	if err != nil {
		return fmt.Errorf("failed to create deck temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write deck: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close deck temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize deck: %w", err)
	}
	return nil
}

// FindElement returns the element with the given ID on the slide, or nil.
func (s *Slide) FindElement(elementID string) *Element {
	for i := range s.Elements {
		if s.Elements[i].ID == elementID {
			return &s.Elements[i]
		}
	}
	return nil
}

// CloneSlide deep-copies a slide so generated slides never alias template
// element storage.
func CloneSlide(src Slide) Slide {
	out := src
	out.Elements = make([]Element, len(src.Elements))
	copy(out.Elements, src.Elements)
	return out
}
