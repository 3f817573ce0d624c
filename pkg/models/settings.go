package models

import "time"

// MatchingSettings is the single global, versioned settings document.
// Callers fetch it once per invocation and pass it down so a run stays
// internally consistent even if the document changes mid-run elsewhere.
type MatchingSettings struct {
	UseAiMerge                bool       `json:"useAiMerge"`
	AutoScanEnabled           bool       `json:"autoScanEnabled"`
	AutoScanIntervalMinutes   int        `json:"autoScanIntervalMinutes"`
	AutoScanLastRun           *time.Time `json:"autoScanLastRun,omitempty"`
	AutoScanNextRun           *time.Time `json:"autoScanNextRun,omitempty"`
	AutoImportEnabled         bool       `json:"autoImportEnabled"`
	AutoImportIntervalMinutes int        `json:"autoImportIntervalMinutes"`
	AutoImportMinScore        float64    `json:"autoImportMinScore"`
	AutoImportLastRun         *time.Time `json:"autoImportLastRun,omitempty"`
	AutoImportNextRun         *time.Time `json:"autoImportNextRun,omitempty"`
	Version                   int        `json:"version"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
	UpdatedBy                 string     `json:"updatedBy"`
}
