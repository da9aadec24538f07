/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package game

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	maxWordLength = 40
	maxPoolSize   = 500
)

// DefaultWords is used when neither the room nor the server configures a pool.
var DefaultWords = []string{
	"Airport", "Astronaut", "Bakery", "Banana", "Beach", "Bicycle",
	"Birthday", "Bowling", "Camping", "Castle", "Cinema", "Circus",
	"Coffee", "Concert", "Dentist", "Desert", "Dinosaur", "Dragon",
	"Elevator", "Farm", "Firefighter", "Football", "Garden", "Ghost",
	"Guitar", "Hospital", "Iceberg", "Island", "Jungle", "Kitchen",
	"Library", "Lighthouse", "Magician", "Museum", "Ninja", "Ocean",
	"Pancake", "Penguin", "Pirate", "Pizza", "Police", "Pyramid",
	"Rainbow", "Restaurant", "Robot", "Rocket", "School", "Snowman",
	"Spaceship", "Submarine", "Supermarket", "Sushi", "Telescope", "Tennis",
	"Train", "Vampire", "Volcano", "Waterfall", "Wedding", "Zoo",
}

type wordsFile struct {
	Words []string `yaml:"words"`
}

// LoadWords reads a YAML file of the form
//
//	words:
//	  - Airport
//	  - Bakery
//
// and returns the sanitized pool.
func LoadWords(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read words file: %w", err)
	}

	var f wordsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse words file: %w", err)
	}

	words := SanitizePool(f.Words)
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: words file %s contains no words", ErrValidation, path)
	}

	return words, nil
}

// SanitizePool trims entries, drops blanks and duplicates, truncates long
// entries and caps the pool size. Order is preserved.
func SanitizePool(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))

	for _, w := range words {
		w = truncate(strings.TrimSpace(w), maxWordLength)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)

		if len(out) == maxPoolSize {
			break
		}
	}

	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}

	r := []rune(s)

	return strings.TrimSpace(string(r[:n]))
}
