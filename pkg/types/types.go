// Package types defines core domain types used throughout the application.
package types

import (
	"time"
)

// ItemID is the opaque, case-sensitive token the remote service uses for one media item.
// It keys metadata lookups and deduplicates injected controls.
type ItemID string

// String returns the raw identifier.
func (id ItemID) String() string {
	return string(id)
}

// Quality labels used by the metadata endpoint.
const (
	QualityHD = "hd"
	QualitySD = "sd"
)

// ItemDescriptor is the resolved metadata for one item.
type ItemDescriptor struct {
	ID   ItemID            `json:"id"`
	URLs map[string]string `json:"urls"` // quality label -> playback URL
}

// URL returns the candidate URL for a quality label, if any.
func (d *ItemDescriptor) URL(quality string) (string, bool) {
	if d == nil || d.URLs == nil {
		return "", false
	}
	u, ok := d.URLs[quality]
	return u, ok && u != ""
}

// Credential is a bearer token and the time it was issued.
type Credential struct {
	Token    string    `json:"-"`
	IssuedAt time.Time `json:"issued_at"`
}

// ValidAt reports whether the credential is still inside the validity window at now.
func (c Credential) ValidAt(now time.Time, validity time.Duration) bool {
	if c.Token == "" || c.IssuedAt.IsZero() {
		return false
	}
	return now.Sub(c.IssuedAt) < validity
}

// Variant selects the size and placement of an injected control.
type Variant string

const (
	VariantLarge Variant = "large" // player and feed containers
	VariantSmall Variant = "small" // grid thumbnails
)

// PageShape identifies which layout a container was discovered in.
type PageShape string

const (
	ShapeSingle PageShape = "single"
	ShapeFeed   PageShape = "feed"
	ShapeGrid   PageShape = "grid"
)

// ControlPhase is the lifecycle phase of an injected control.
type ControlPhase string

const (
	PhaseIdle    ControlPhase = "idle"
	PhasePending ControlPhase = "pending"
	PhaseSuccess ControlPhase = "success"
	PhaseFailure ControlPhase = "failure"
)

// ControlState is the visible state of a control.
type ControlState struct {
	Phase    ControlPhase `json:"phase"`
	Label    string       `json:"label"`
	Disabled bool         `json:"disabled"`
}

// Control states.
var (
	StateIdle    = ControlState{Phase: PhaseIdle, Label: "Download"}
	StatePending = ControlState{Phase: PhasePending, Label: "…", Disabled: true}
	StateSuccess = ControlState{Phase: PhaseSuccess, Label: "Done", Disabled: true}
	StateFailure = ControlState{Phase: PhaseFailure, Label: "Error", Disabled: true}
)

// DownloadResult is reported by a download mechanism when a transfer ends.
type DownloadResult struct {
	Path  string `json:"path,omitempty"`
	Bytes int64  `json:"bytes"`
	Err   error  `json:"-"`
}

// Succeeded reports whether the transfer completed.
func (r DownloadResult) Succeeded() bool {
	return r.Err == nil
}

// ControlSnapshot is a read-only view of a control, used by the API and CLI.
type ControlSnapshot struct {
	ItemID      ItemID       `json:"item_id"`
	Variant     Variant      `json:"variant"`
	Shape       PageShape    `json:"shape"`
	State       ControlState `json:"state"`
	Attached    bool         `json:"attached"`
	LastMessage string       `json:"last_message,omitempty"`
	LastFile    string       `json:"last_file,omitempty"`
}

// SessionInfo summarizes an augmented page session.
type SessionInfo struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Controls  int       `json:"controls"`
	Scans     int       `json:"scans"`
}
