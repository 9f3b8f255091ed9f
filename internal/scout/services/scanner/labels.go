package scanner

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
)

// ReadLabels parses a wordlist stream: '#' comments and blank lines are
// skipped, the first whitespace token of each remaining line is the label.
// Any invalid label fails the whole read; user wordlists are input, not
// advisory data.
func ReadLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line, _, _ := strings.Cut(scanner.Text(), "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		token := strings.Fields(line)[0]
		label, err := utils.NormalizeLabel(token)
		if err != nil {
			return nil, fmt.Errorf("wordlist line %d: %w", lineno, err)
		}
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return labels, nil
}
