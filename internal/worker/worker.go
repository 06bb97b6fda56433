// Package worker executes queued transcription tasks. One message maps to
// one job: the worker marks it processing, materializes the audio locally,
// runs the transcriber, and records the terminal state. Processing failures
// are recorded on the job and the message is acknowledged; redelivering a
// permanently failing job would loop forever.
package worker

import (
	"fmt"
	"log"
	"os"

	"example.com/soundsright/internal/transcribe"
	"example.com/soundsright/internal/types"
)

// JobStore is the slice of the job store the worker needs.
type JobStore interface {
	Get(id string) (*types.TranscriptionJob, error)
	Update(job *types.TranscriptionJob) error
}

// ArtifactStore resolves a locator to a local file the worker owns.
type ArtifactStore interface {
	Download(locator string) (string, error)
}

type Worker struct {
	Jobs        JobStore
	Artifacts   ArtifactStore
	Transcriber transcribe.Transcriber
}

func New(jobs JobStore, artifacts ArtifactStore, transcriber transcribe.Transcriber) *Worker {
	return &Worker{Jobs: jobs, Artifacts: artifacts, Transcriber: transcriber}
}

// Handle processes one delivered task message. A returned error negatively
// acknowledges the message; a nil return acknowledges it regardless of
// whether the job succeeded.
func (w *Worker) Handle(msg types.TaskMessage) error {
	job, err := w.Jobs.Get(msg.JobID)
	if err != nil {
		// Without a job record there is nothing to transition; reject the
		// delivery and let the broker's retention deal with it.
		return fmt.Errorf("load job %s: %w", msg.JobID, err)
	}

	job.Status = types.StatusProcessing
	if err := w.Jobs.Update(job); err != nil {
		return fmt.Errorf("mark job %s processing: %w", job.ID, err)
	}
	log.Printf("worker: job %s processing (version %d of %s)", job.ID, job.Version, job.Song)

	localPath, err := w.Artifacts.Download(msg.AudioURL)
	if err != nil {
		w.fail(job, fmt.Errorf("download audio: %w", err))
		return nil
	}
	defer func() {
		if err := os.Remove(localPath); err != nil {
			log.Printf("worker: remove %s: %v", localPath, err)
		}
	}()

	result, err := w.Transcriber.Transcribe(localPath, msg.Lyrics)
	if err != nil {
		w.fail(job, err)
		return nil
	}

	job.Status = types.StatusCompleted
	job.Result = result
	job.Error = ""
	if err := w.Jobs.Update(job); err != nil {
		// The transcript is lost unless the broker redelivers; reject so the
		// job is retried against the current record.
		return fmt.Errorf("record result for job %s: %w", job.ID, err)
	}
	log.Printf("worker: job %s completed", job.ID)
	return nil
}

func (w *Worker) fail(job *types.TranscriptionJob, cause error) {
	job.Status = types.StatusFailed
	job.Error = cause.Error()
	job.Result = nil
	if err := w.Jobs.Update(job); err != nil {
		log.Printf("worker: job %s failed (%v) but the failure could not be recorded: %v", job.ID, cause, err)
		return
	}
	log.Printf("worker: job %s failed: %v", job.ID, cause)
}
