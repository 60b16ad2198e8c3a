package addrbook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlacesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadPlaces(t *testing.T) {
	path := writePlacesFile(t, "London, England\n\n# a comment\nParis, France\n")

	places, err := ReadPlaces(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"London, England", "Paris, France"}, places)
}

func TestReadPlacesSkipsHeaderAndQuotes(t *testing.T) {
	path := writePlacesFile(t, "place\n\"London, England\"\n\"Paris, France\"\n")

	places, err := ReadPlaces(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"London, England", "Paris, France"}, places)
}

func TestReadPlacesMissingFile(t *testing.T) {
	_, err := ReadPlaces(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
