package domain

import "errors"

var (
	// ErrAllStrategiesFailed is returned when no fetch strategy produced valid content.
	ErrAllStrategiesFailed = errors.New("all fetch strategies failed")

	// ErrContentTooSmall marks a response below the validation threshold,
	// usually a bot challenge or an empty shell page.
	ErrContentTooSmall = errors.New("content below minimum size")

	// ErrNoCheckpoint is returned by storage when no checkpoint has been written yet.
	ErrNoCheckpoint = errors.New("no checkpoint found")

	// ErrNoStats is returned by storage when no batch report exists yet.
	ErrNoStats = errors.New("no batch report found")
)
