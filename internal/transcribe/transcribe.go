// Package transcribe defines the transcription capability consumed by the
// worker and one implementation that shells out to local CLI tools.
package transcribe

import "example.com/soundsright/internal/types"

// Transcriber turns a local audio file, plus optional lyrics, into a
// structured transcript. Implementations are opaque to the pipeline: the
// worker only pattern-matches the returned error into the job's terminal
// transition. Cancellation is not supported; a dispatched job runs to
// completion or failure.
type Transcriber interface {
	Transcribe(audioPath string, lyrics *string) (*types.Transcript, error)
}
