// Package asset models uploaded raster assets: their lifecycle state, the
// filename gate checked before upload, and GeoTIFF header sniffing.
package asset

// Status is the persisted status keyword of an asset.
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "completed"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// State is the tagged lifecycle state of an asset. The session id is only
// carried by the processing, processed and failed states, and the reason
// only by failed. Build values with the constructors below.
type State struct {
	Status    Status
	SessionID string
	Reason    string
}

func Pending() State   { return State{Status: StatusPending} }
func Uploading() State { return State{Status: StatusUploading} }

// Uploaded is an asset whose bytes are stored and which has not been
// processed. It is the only state processing may start from.
func Uploaded() State { return State{Status: StatusUploaded} }

func Processing(sessionID string) State {
	return State{Status: StatusProcessing, SessionID: sessionID}
}

func Processed(sessionID string) State {
	return State{Status: StatusProcessed, SessionID: sessionID}
}

// Failed records a failure. sessionID is empty when the failure happened
// during upload.
func Failed(sessionID, reason string) State {
	return State{Status: StatusFailed, SessionID: sessionID, Reason: reason}
}

// Restore rebuilds a State from stored columns, dropping fields the status
// does not carry.
func Restore(status Status, sessionID, reason string) State {
	switch status {
	case StatusProcessing:
		return Processing(sessionID)
	case StatusProcessed:
		return Processed(sessionID)
	case StatusFailed:
		return Failed(sessionID, reason)
	default:
		return State{Status: status}
	}
}

func (s State) IsProcessable() bool { return s.Status == StatusUploaded }
func (s State) IsProcessed() bool   { return s.Status == StatusProcessed }

func (s State) String() string {
	switch {
	case s.Reason != "":
		return string(s.Status) + ": " + s.Reason
	case s.SessionID != "":
		return string(s.Status) + " (" + s.SessionID + ")"
	default:
		return string(s.Status)
	}
}
