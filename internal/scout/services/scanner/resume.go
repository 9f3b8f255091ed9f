package scanner

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/sdscout/sdscout/internal/scout/common/utils"
)

// LoadResumeSet reads a prior scan output and returns the set of
// normalized labels already recorded for apex. Invalid JSON lines,
// non-object lines and subdomains outside the apex are ignored: the prior
// output may be truncated mid-line from an interrupted run.
func LoadResumeSet(r io.Reader, apex string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	suffix := "." + apex

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			continue
		}
		subdomain, ok := obj["subdomain"].(string)
		if !ok || !strings.HasSuffix(subdomain, suffix) {
			continue
		}
		label, err := utils.NormalizeLabel(strings.TrimSuffix(subdomain, suffix))
		if err != nil {
			continue
		}
		seen[label] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return seen, nil
}

// LoadResumeFile loads the resume set from path. A missing file is an
// empty set: the first resumed run starts from scratch.
func LoadResumeFile(path, apex string) (map[string]struct{}, error) {
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	defer fh.Close()
	return LoadResumeSet(fh, apex)
}
