package api

import "github.com/mattjoyce/jarscout/internal/catalog"

// ScanRequest is the JSON body for POST /scans
type ScanRequest struct {
	Root string `json:"root"`
}

// ScanResponse is returned once a scan has been queued
type ScanResponse struct {
	ItemID uint64 `json:"item_id"`
	Root   string `json:"root"`
	Status string `json:"status"`
}

// ScansResponse is returned by GET /scans
type ScansResponse struct {
	Scans []catalog.Scan `json:"scans"`
}

// ArchivesResponse is returned by GET /archives
type ArchivesResponse struct {
	Archives []catalog.Archive `json:"archives"`
}

// FailuresResponse is returned by GET /failures
type FailuresResponse struct {
	Failures []catalog.Failure `json:"failures"`
}

// ClassesResponse is returned by GET /classes
type ClassesResponse struct {
	Query   string          `json:"query"`
	Classes []catalog.Match `json:"classes"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subscribers   int    `json:"event_subscribers"`
}
