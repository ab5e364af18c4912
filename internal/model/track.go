package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// JobHandle identifies a job submitted to a remote asynchronous service
type JobHandle struct {
	JobID       string    `json:"jobId"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// SourceAudio is the audio handed to stem separation
type SourceAudio struct {
	Origin   SourceOrigin `json:"origin"`
	Filename string       `json:"filename,omitempty"`
	Key      string       `json:"key,omitempty"`
	URL      string       `json:"url"`
	TaskID   string       `json:"taskId,omitempty"`
	Prompt   string       `json:"prompt,omitempty"`
}

// EQSettings holds per-band equalizer gains
type EQSettings struct {
	Low  float64 `json:"low"`
	Mid  float64 `json:"mid"`
	High float64 `json:"high"`
}

// MixSettings is the initial mix applied to a new track
type MixSettings struct {
	Volume float64    `json:"volume"`
	Reverb float64    `json:"reverb"`
	EQ     EQSettings `json:"eq"`
}

// DefaultMixSettings returns the static mix every track starts with
func DefaultMixSettings() MixSettings {
	return MixSettings{
		Volume: 1.0,
		Reverb: 0.5,
		EQ: EQSettings{
			Low:  0.2,
			Mid:  0.5,
			High: 0.8,
		},
	}
}

// GenerationMetadata is the musical metadata reported by the generation service
type GenerationMetadata struct {
	Duration        *float64        `json:"duration,omitempty"`
	Genre           string          `json:"genre,omitempty"`
	Mood            string          `json:"mood,omitempty"`
	Instrumentation json.RawMessage `json:"instrumentation,omitempty"`
	BPM             *float64        `json:"bpm,omitempty"`
	Key             string          `json:"key,omitempty"`
	Scale           string          `json:"scale,omitempty"`
}

// UnmarshalJSON decodes metadata field by field. Fields of an unexpected
// shape are dropped instead of failing the whole reply. String lists are
// joined and numeric strings are parsed.
func (m *GenerationMetadata) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// not an object
		*m = GenerationMetadata{}
		return nil
	}

	*m = GenerationMetadata{
		Duration: looseNumber(fields["duration"]),
		Genre:    looseString(fields["genre"]),
		Mood:     looseString(fields["mood"]),
		BPM:      looseNumber(fields["bpm"]),
		Key:      looseString(fields["key"]),
		Scale:    looseString(fields["scale"]),
	}
	if raw, ok := fields["instrumentation"]; ok && string(raw) != "null" {
		m.Instrumentation = raw
	}
	return nil
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

func looseNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &n
		}
	}
	return nil
}

// GenerationSummary describes the generation job of a track
type GenerationSummary struct {
	TaskID           string             `json:"taskId"`
	GenerationStatus string             `json:"generationStatus"`
	Prompt           string             `json:"prompt"`
	SongPaths        []string           `json:"songPaths"`
	Metadata         GenerationMetadata `json:"metadata"`
}

// SeparationResult is the terminal output of a stem separation job
type SeparationResult struct {
	Stems      map[string]string `json:"stems"`
	Duration   *float64          `json:"duration,omitempty"`
	SampleRate *int              `json:"sampleRate,omitempty"`
	BitDepth   *int              `json:"bitDepth,omitempty"`

	// StemOrder lists stem names in the order the service reported them
	StemOrder []string `json:"-"`
}

// SeparationSummary describes the separation job of a track
type SeparationSummary struct {
	JobID    string           `json:"jobId"`
	Status   string           `json:"status"`
	Workflow string           `json:"workflow"`
	Result   SeparationResult `json:"result"`
}

// ResponseLocations points at the stored raw job responses
type ResponseLocations struct {
	Sonauto *string `json:"sonauto"`
	MusicAI *string `json:"musicAi"`
}

// StorageLocations lists where every artifact of a run was written
type StorageLocations struct {
	OriginalTrack string            `json:"originalTrack"`
	Stems         map[string]string `json:"stems"`
	Responses     ResponseLocations `json:"responses"`
	Polls         ResponseLocations `json:"polls"`
}

// Track is the document stored once per successful pipeline run
type Track struct {
	TrackID          string             `json:"trackId"`
	Source           SourceOrigin       `json:"source"`
	OriginalTrackURL string             `json:"originalTrackUrl"`
	Stems            map[string]string  `json:"stems"`
	CreatedAt        time.Time          `json:"createdAt"`
	MixSettings      MixSettings        `json:"mixSettings"`
	Sonauto          *GenerationSummary `json:"sonauto"`
	MusicAI          SeparationSummary  `json:"musicAi"`
	Storage          StorageLocations   `json:"storage"`
}

// TrackMetadata mirrors the job summaries in the API response
type TrackMetadata struct {
	Sonauto *GenerationSummary `json:"sonauto"`
	MusicAI SeparationSummary  `json:"musicAi"`
}

// GenerateTrackResponse is returned to callers of a pipeline run
type GenerateTrackResponse struct {
	TrackID  string            `json:"trackId"`
	TrackURL string            `json:"trackUrl"`
	Stems    map[string]string `json:"stems"`
	Message  string            `json:"message"`
	Metadata TrackMetadata     `json:"metadata"`
	Storage  StorageLocations  `json:"storage"`
}

// TrackCreatedEvent is published after a track document has been stored
type TrackCreatedEvent struct {
	TrackID   string            `json:"trackId"`
	Source    SourceOrigin      `json:"source"`
	TrackURL  string            `json:"trackUrl"`
	Stems     map[string]string `json:"stems"`
	CreatedAt time.Time         `json:"createdAt"`
}
