package model

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// SourceOrigin tells where the audio fed to stem separation came from
type SourceOrigin string

const (
	SourceUploaded  SourceOrigin = "uploaded"
	SourceGenerated SourceOrigin = "generated"
)

// PipelineStage names a step of a track pipeline run
type PipelineStage string

const (
	StageAcquireSource    PipelineStage = "acquire_source"
	StageSubmitGeneration PipelineStage = "submit_generation"
	StagePollGeneration   PipelineStage = "poll_generation"
	StageResolveSource    PipelineStage = "resolve_source"
	StageSubmitSeparation PipelineStage = "submit_separation"
	StagePollSeparation   PipelineStage = "poll_separation"
	StageFetchStems       PipelineStage = "fetch_stems"
	StagePersistArtifacts PipelineStage = "persist_artifacts"
	StagePersistTrack     PipelineStage = "persist_track"
	StageAssemble         PipelineStage = "assemble"
	StageDone             PipelineStage = "done"
	StageFailed           PipelineStage = "failed"
)

// Remote job status vocabularies
const (
	SonautoStatusSuccess = "SUCCESS"
	SonautoStatusFailure = "FAILURE"

	MusicAIStatusSucceeded = "SUCCEEDED"
	MusicAIStatusFailed    = "FAILED"
)

// Well-known stem names produced by the vocals/accompaniment workflow
const (
	StemVocals        = "vocals"
	StemAccompaniment = "accompaniment"
)
