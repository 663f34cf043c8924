package models

import "errors"

// Error taxonomy shared by every stage. Wrap with fmt.Errorf("%w: ...") and
// match with errors.Is.
var (
	// ErrInput: missing or invalid assets. Job aborts before work begins.
	ErrInput = errors.New("input error")
	// ErrTranscription: transcription capability failed. Captions are dropped.
	ErrTranscription = errors.New("transcription error")
	// ErrSubtitleParse: a malformed subtitle block. The block is skipped.
	ErrSubtitleParse = errors.New("subtitle parse error")
	// ErrComposition: closing clip or background bed could not be prepared.
	ErrComposition = errors.New("composition error")
	// ErrExport: encode failure. Job-fatal.
	ErrExport = errors.New("export error")

	ErrNotFound = errors.New("task not found")
	ErrNotReady = errors.New("video not ready for download")
)
