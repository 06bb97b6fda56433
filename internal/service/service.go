// Package service is the job orchestrator: it validates submissions, stores
// artifacts under a fresh version, creates the job record, and dispatches
// the task message. It also owns approval, which promotes a completed
// version's files to production storage.
package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"example.com/soundsright/internal/types"
)

// JobStore is the slice of the job store the orchestrator needs.
type JobStore interface {
	Create(job *types.TranscriptionJob) error
	Get(id string) (*types.TranscriptionJob, error)
	Update(job *types.TranscriptionJob) error
	NextVersion(song types.Song) (int, error)
	GetByVersion(song types.Song, version int) (*types.TranscriptionJob, error)
}

// ArtifactStore is the slice of the artifact store the orchestrator needs.
type ArtifactStore interface {
	Upload(content []byte, song types.Song, version int, filename, contentType string) (string, error)
	Promote(song types.Song, version int) (map[string]string, error)
	PromotedFiles(song types.Song, version int) (map[string]string, error)
}

// Publisher dispatches task messages to the worker queue.
type Publisher interface {
	Publish(msg types.TaskMessage) error
}

type Service struct {
	Jobs      JobStore
	Artifacts ArtifactStore
	Tasks     Publisher
}

func New(jobs JobStore, artifacts ArtifactStore, tasks Publisher) *Service {
	return &Service{Jobs: jobs, Artifacts: artifacts, Tasks: tasks}
}

// SubmitRequest carries one transcription submission. Lyrics are optional;
// a nil slice means none were provided.
type SubmitRequest struct {
	Artist string
	Album  string
	Title  string

	AudioFilename    string
	AudioContentType string
	Audio            []byte

	LyricsFilename    string
	LyricsContentType string
	Lyrics            []byte
}

// Submit validates the request, uploads the artifacts under the next version
// for the song, records a pending job, and publishes the task message.
//
// Validation failures return before any side effect. A publish failure after
// the job record exists is returned to the caller; the pending record stays
// behind for reconciliation rather than attempting a rollback.
func (s *Service) Submit(req SubmitRequest) (*types.TranscriptionJob, error) {
	if err := validateSubmit(&req); err != nil {
		return nil, err
	}
	song := types.Song{Artist: req.Artist, Album: req.Album, Title: req.Title}.Normalize()

	version, err := s.Jobs.NextVersion(song)
	if err != nil {
		return nil, fmt.Errorf("assign version: %w", err)
	}

	var lyrics *string
	var lyricsURL string
	if req.Lyrics != nil {
		text := string(req.Lyrics)
		lyrics = &text
		lyricsURL, err = s.Artifacts.Upload(req.Lyrics, song, version, req.LyricsFilename, req.LyricsContentType)
		if err != nil {
			return nil, fmt.Errorf("upload lyrics: %w", err)
		}
	}

	audioURL, err := s.Artifacts.Upload(req.Audio, song, version, req.AudioFilename, req.AudioContentType)
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	now := types.Now()
	job := &types.TranscriptionJob{
		ID:        uuid.NewString(),
		Artist:    song.Artist,
		Album:     song.Album,
		Title:     song.Title,
		AudioURL:  audioURL,
		LyricsURL: lyricsURL,
		Status:    types.StatusPending,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Jobs.Create(job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	err = s.Tasks.Publish(types.TaskMessage{
		Task:     types.TaskTranscribeAudio,
		JobID:    job.ID,
		AudioURL: audioURL,
		Lyrics:   lyrics,
	})
	if err != nil {
		return nil, fmt.Errorf("job %s created but not dispatched: %w", job.ID, err)
	}
	return job, nil
}

// SubmitStored records and dispatches a job for audio that is already in the
// review bucket under an assigned version, as happens with direct presigned
// uploads.
func (s *Service) SubmitStored(song types.Song, version int, audioURL string) (*types.TranscriptionJob, error) {
	song = song.Normalize()
	now := types.Now()
	job := &types.TranscriptionJob{
		ID:        uuid.NewString(),
		Artist:    song.Artist,
		Album:     song.Album,
		Title:     song.Title,
		AudioURL:  audioURL,
		Status:    types.StatusPending,
		Version:   version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Jobs.Create(job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	err := s.Tasks.Publish(types.TaskMessage{
		Task:     types.TaskTranscribeAudio,
		JobID:    job.ID,
		AudioURL: audioURL,
	})
	if err != nil {
		return nil, fmt.Errorf("job %s created but not dispatched: %w", job.ID, err)
	}
	return job, nil
}

// Status returns the current job record.
func (s *Service) Status(jobID string) (*types.TranscriptionJob, error) {
	return s.Jobs.Get(jobID)
}

// Approve promotes the artifacts of a completed (song, version) job to
// production storage and marks the job approved. Anything other than an
// existing completed job is a not-found condition and mutates nothing.
func (s *Service) Approve(song types.Song, version int) (*types.TranscriptionJob, map[string]string, error) {
	song = song.Normalize()
	job, err := s.Jobs.GetByVersion(song, version)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != types.StatusCompleted {
		return nil, nil, fmt.Errorf("no completed job for %s version %d (status %s): %w",
			song.Key(), version, job.Status, types.ErrNotFound)
	}

	moved, err := s.Artifacts.Promote(song, version)
	if errors.Is(err, types.ErrNotFound) {
		// An earlier run may have emptied the review prefix and then crashed
		// before the status flipped. Finish the approval from the production
		// copies instead of failing the job forever.
		moved, err = s.Artifacts.PromotedFiles(song, version)
		if err == nil && len(moved) == 0 {
			err = fmt.Errorf("no artifacts for %s version %d: %w", song.Key(), version, types.ErrNotFound)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("promote %s version %d: %w", song.Key(), version, err)
	}

	job.Status = types.StatusApproved
	if err := s.Jobs.Update(job); err != nil {
		return nil, nil, err
	}
	return job, moved, nil
}
