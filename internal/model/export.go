package model

import "time"

// ExportFile is a time limited download link for one stored artifact
type ExportFile struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ExportTrackRequest selects what a download bundle contains
type ExportTrackRequest struct {
	Stems           []string `json:"stems" validate:"omitempty,dive,required,max=64"`
	IncludeOriginal *bool    `json:"includeOriginal"`
	ExpiryMinutes   int      `json:"expiryMinutes" validate:"omitempty,min=1,max=10080"`
}

// ExportTrackResponse lists signed links for a stored track
type ExportTrackResponse struct {
	TrackID   string                `json:"trackId"`
	Original  *ExportFile           `json:"original,omitempty"`
	Stems     map[string]ExportFile `json:"stems"`
	FileCount int                   `json:"fileCount"`
	ExpiresAt time.Time             `json:"expiresAt"`
}
