package pipeline

import (
	"time"

	"github.com/stemline/api/internal/client"
	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/poller"
)

const successMessage = "Track generated and stored successfully!"

// RunState is everything a run has accumulated. Only the orchestrator
// mutates it; Assemble and BuildTrack read it.
type RunState struct {
	TrackID string
	Source  model.SourceAudio

	Generation        *client.GenerationStatus
	GenerationHistory *poller.History

	Separation         *client.SeparationStatus
	SeparationHistory  *poller.History
	SeparationWorkflow string

	OriginalTrackURL string
	Stems            map[string]string
	Storage          model.StorageLocations
	CreatedAt        time.Time

	// written lists every blob key stored by the run, in write order
	written []string
}

func newRunState(trackID string) *RunState {
	return &RunState{
		TrackID: trackID,
		Stems:   map[string]string{},
		Storage: model.StorageLocations{Stems: map[string]string{}},
	}
}

func (s *RunState) generationSummary() *model.GenerationSummary {
	if s.Generation == nil {
		return nil
	}
	return &model.GenerationSummary{
		TaskID:           s.Generation.TaskID,
		GenerationStatus: s.Generation.Status,
		Prompt:           s.Source.Prompt,
		SongPaths:        append([]string(nil), s.Generation.SongPaths...),
		Metadata:         s.Generation.Metadata,
	}
}

func (s *RunState) separationSummary() model.SeparationSummary {
	if s.Separation == nil {
		return model.SeparationSummary{Workflow: s.SeparationWorkflow}
	}
	result := s.Separation.Result
	result.Stems = copyMap(result.Stems)
	return model.SeparationSummary{
		JobID:    s.Separation.ID,
		Status:   s.Separation.Status,
		Workflow: s.SeparationWorkflow,
		Result:   result,
	}
}

func (s *RunState) storageLocations() model.StorageLocations {
	loc := s.Storage
	loc.Stems = copyMap(s.Storage.Stems)
	return loc
}

// BuildTrack projects the run into the stored track document
func BuildTrack(s *RunState) *model.Track {
	return &model.Track{
		TrackID:          s.TrackID,
		Source:           s.Source.Origin,
		OriginalTrackURL: s.OriginalTrackURL,
		Stems:            copyMap(s.Stems),
		CreatedAt:        s.CreatedAt,
		MixSettings:      model.DefaultMixSettings(),
		Sonauto:          s.generationSummary(),
		MusicAI:          s.separationSummary(),
		Storage:          s.storageLocations(),
	}
}

// Assemble projects the run into the caller facing response
func Assemble(s *RunState) *model.GenerateTrackResponse {
	return &model.GenerateTrackResponse{
		TrackID:  s.TrackID,
		TrackURL: s.OriginalTrackURL,
		Stems:    copyMap(s.Stems),
		Message:  successMessage,
		Metadata: model.TrackMetadata{
			Sonauto: s.generationSummary(),
			MusicAI: s.separationSummary(),
		},
		Storage: s.storageLocations(),
	}
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
