package main

import (
	"errors"

	"github.com/softwareheritage/provenance/internal/provenanceerr"
)

// Exit codes per spec.md §6.2.
const (
	exitSuccess           = 0
	exitArgumentError     = 1
	exitStorageError      = 2
	exitIncompleteInput   = 3
	exitInvariantViolated = 64
)

// exitCodeFor classifies a run failure into spec.md §6.2's exit codes.
// usageErr distinguishes a cobra flag/argument validation failure (always
// exitArgumentError) from a failure the command body raised. A body
// failure tagged with op "config" (a required --graph/--database value
// that Config.Validate rejected) is also an argument error.
//
// Only an error that is actually a *provenanceerr.Error is classified by
// Kind; a plain, unwrapped error (a bare os.MkdirAll or badger failure
// bubbling up from a stage that never bothered to tag it) is treated as a
// storage error rather than provenanceerr.KindOf's default KindInternal
// bucket, so exitInvariantViolated is reserved for failures a stage
// deliberately raised via provenanceerr.Internal.
func exitCodeFor(err error, usageErr bool) int {
	if err == nil {
		return exitSuccess
	}
	if usageErr {
		return exitArgumentError
	}
	var pe *provenanceerr.Error
	if !errors.As(err, &pe) {
		return exitStorageError
	}
	switch pe.Kind {
	case provenanceerr.KindInput, provenanceerr.KindNotFound:
		if pe.Op == "config" {
			return exitArgumentError
		}
		return exitIncompleteInput
	case provenanceerr.KindInternal:
		return exitInvariantViolated
	default:
		return exitStorageError
	}
}
