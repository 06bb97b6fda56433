package types

import (
	"html"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of a transcription job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusApproved   JobStatus = "approved"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == StatusFailed || s == StatusApproved
}

// TimeFormat is used for all job timestamps, stored and served as strings.
const TimeFormat = time.RFC3339

// Now returns the current UTC time in TimeFormat.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// Song identifies one track. All artifact paths and job versions are scoped
// to this triple.
type Song struct {
	Artist string `json:"artist"`
	Album  string `json:"album"`
	Title  string `json:"title"`
}

// Normalize trims surrounding whitespace and escapes HTML metacharacters in
// every field. Submission applies this before anything is stored.
func (s Song) Normalize() Song {
	return Song{
		Artist: html.EscapeString(strings.TrimSpace(s.Artist)),
		Album:  html.EscapeString(strings.TrimSpace(s.Album)),
		Title:  html.EscapeString(strings.TrimSpace(s.Title)),
	}
}

// Key is the canonical "artist/album/title" form used as the song index key
// and as the storage path prefix.
func (s Song) Key() string {
	return s.Artist + "/" + s.Album + "/" + s.Title
}

// TranscriptionJob is the single source of truth for one transcription
// request. The song attribute is denormalized from artist/album/title so the
// job table's song index can key on it.
type TranscriptionJob struct {
	ID        string      `json:"id"`
	Artist    string      `json:"artist"`
	Album     string      `json:"album"`
	Title     string      `json:"title"`
	Song      string      `json:"song"`
	AudioURL  string      `json:"audio_url"`
	LyricsURL string      `json:"lyrics_url,omitempty"`
	Status    JobStatus   `json:"status"`
	Version   int         `json:"version"`
	CreatedAt string      `json:"created_at"`
	UpdatedAt string      `json:"updated_at"`
	Result    *Transcript `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	// Seq guards concurrent writers: every update must present the seq it
	// read and bumps it by one.
	Seq int64 `json:"seq"`
}

// SongID returns the song identity the job belongs to.
func (j *TranscriptionJob) SongID() Song {
	return Song{Artist: j.Artist, Album: j.Album, Title: j.Title}
}

// Touch advances updated_at, never behind created_at.
func (j *TranscriptionJob) Touch() {
	now := Now()
	if now < j.CreatedAt {
		now = j.CreatedAt
	}
	j.UpdatedAt = now
}

// TaskTranscribeAudio is the task name carried by every queue message.
const TaskTranscribeAudio = "transcribe_audio"

// TaskMessage is the wire record published to the task queue. It carries no
// job state; the job record is authoritative.
type TaskMessage struct {
	Task     string  `json:"task"`
	JobID    string  `json:"job_id"`
	AudioURL string  `json:"audio_url"`
	Lyrics   *string `json:"lyrics"`
}

// Transcript is the structured output of the transcription capability.
type Transcript struct {
	Text            string    `json:"text"`
	Confidence      float64   `json:"confidence"`
	DurationSeconds float64   `json:"duration_seconds"`
	Language        string    `json:"language"`
	Segments        []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}
