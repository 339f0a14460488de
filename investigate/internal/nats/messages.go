// Package nats wires the investigate service to the NATS message broker.
package nats

import (
	"time"

	"github.com/telhawk-systems/telhawk-investigate/investigate/internal/models"
)

// LinkRequest is received on investigate.link.requests from upstream
// detectors that want entities attached to an investigation.
type LinkRequest struct {
	RequestID   string              `json:"request_id,omitempty"`
	Source      string              `json:"source,omitempty"`
	Entities    []models.Entity     `json:"entities"`
	Metadata    models.LinkMetadata `json:"metadata"`
	RequestedAt time.Time           `json:"requested_at"`
}

// LinkReply is sent back when the request carried a reply subject.
type LinkReply struct {
	RequestID       string `json:"request_id,omitempty"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	InvestigationID string `json:"investigation_id,omitempty"`
	HumanCode       string `json:"human_code,omitempty"`
	EntityCount     int    `json:"entity_count"`
}
