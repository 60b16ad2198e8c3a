package addrbook

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadPlaces reads a places file: one place per line, blank lines and
// #-comments ignored. A leading "place" header row from CSV exports is
// skipped, and surrounding quotes are stripped.
func ReadPlaces(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "addrbook: open places file %s", path)
	}
	defer f.Close()

	var places []string
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.Trim(line, `"`)
		if first && strings.EqualFold(line, "place") {
			first = false
			continue
		}
		first = false
		places = append(places, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "addrbook: read places file %s", path)
	}
	return places, nil
}
