package pipeline

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// Blob keys written by a run

func uploadKey(ts time.Time, filename string) string {
	return fmt.Sprintf("uploads/%d_%s", ts.UnixMilli(), sanitizeFilename(filename))
}

func stemKey(ts time.Time, stem string) string {
	return fmt.Sprintf("stems/%d_%s.mp3", ts.UnixMilli(), sanitizeFilename(stem))
}

func trackKey(trackID string) string {
	return "tracks/" + trackID
}

func generationResponseKey(trackID string) string {
	return trackKey(trackID) + "/sonauto_response.json"
}

func separationResponseKey(trackID string) string {
	return trackKey(trackID) + "/musicai_response.json"
}

func generationPollsKey(trackID string) string {
	return trackKey(trackID) + "/polls/sonauto_polls.json"
}

func separationPollsKey(trackID string) string {
	return trackKey(trackID) + "/polls/musicai_polls.json"
}

// sanitizeFilename keeps the base name and drops characters that would
// change the key hierarchy.
func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "track"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == '?' || r == '#':
			return -1
		}
		return r
	}, name)
}
