package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ShadowCreated Type = iota + 1
	ShadowMoved
	FileMounted
	SymlinkCloned
	Mirrored
	Whiteout
	ChildSkipped
	ChildFailed
)

var typeNames = [...]string{
	ShadowCreated: "ShadowCreated",
	ShadowMoved:   "ShadowMoved",
	FileMounted:   "FileMounted",
	SymlinkCloned: "SymlinkCloned",
	Mirrored:      "Mirrored",
	Whiteout:      "Whiteout",
	ChildSkipped:  "ChildSkipped",
	ChildFailed:   "ChildFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single step taken by the materializer.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // real path the step applies to
	Source    string // module or real path the content comes from
	Error     error
}
