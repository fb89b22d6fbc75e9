package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ListStarted Type = iota + 1
	ListComplete
	DiffComplete
	FileCopied
	DirCreated
	FileFailed
	FileSkipped
	VerifyOK
	VerifyFailed
)

var typeNames = [...]string{
	ListStarted:  "ListStarted",
	ListComplete: "ListComplete",
	DiffComplete: "DiffComplete",
	FileCopied:   "FileCopied",
	DirCreated:   "DirCreated",
	FileFailed:   "FileFailed",
	FileSkipped:  "FileSkipped",
	VerifyOK:     "VerifyOK",
	VerifyFailed: "VerifyFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine.
type Event struct {
	Timestamp time.Time
	Error     error
	Path      string // relative path; the tree root for list events
	Reason    string // mismatch reason (FileCopied, FileSkipped)
	Size      int64
	Total     int64 // entry count (ListComplete, DiffComplete)
	Type      Type
}
