package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"example.com/soundsright/internal/service"
	"example.com/soundsright/internal/types"
)

// transcriptionAPI is what the handlers need from the orchestrator.
type transcriptionAPI interface {
	Submit(req service.SubmitRequest) (*types.TranscriptionJob, error)
	Status(jobID string) (*types.TranscriptionJob, error)
	Approve(song types.Song, version int) (*types.TranscriptionJob, map[string]string, error)
}

type versionSource interface {
	NextVersion(song types.Song) (int, error)
}

type uploadSigner interface {
	SignedPutURL(song types.Song, version int, filename string) (string, error)
}

type server struct {
	api      transcriptionAPI
	versions versionSource
	signer   uploadSigner
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	r.HandleFunc("/transcription", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/transcription/upload-url", s.handleUploadURL).Methods(http.MethodGet)
	r.HandleFunc("/transcription/approve", s.handleApprove).Methods(http.MethodPost)
	r.HandleFunc("/transcription/{job_id}", s.handleStatus).Methods(http.MethodGet)
	return r
}

// envelope is the response body shape shared by every endpoint.
type envelope struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Errors  []string    `json:"errors"`
	Status  int         `json:"status"`
}

func writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	writeEnvelope(w, envelope{Data: data, Message: message, Errors: []string{}, Status: status})
}

func writeErrors(w http.ResponseWriter, status int, errs ...string) {
	writeEnvelope(w, envelope{Message: "error", Errors: errs, Status: status})
}

func writeEnvelope(w http.ResponseWriter, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

// jobView is the status projection served to clients. Result and error are
// mutually exclusive: result appears once the job completes (and survives
// approval), error only on failure.
type jobView struct {
	JobID     string            `json:"job_id"`
	Status    types.JobStatus   `json:"status"`
	Artist    string            `json:"artist"`
	Album     string            `json:"album"`
	Title     string            `json:"title"`
	Version   int               `json:"version"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Result    *types.Transcript `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
}

func viewOf(job *types.TranscriptionJob) jobView {
	view := jobView{
		JobID:     job.ID,
		Status:    job.Status,
		Artist:    job.Artist,
		Album:     job.Album,
		Title:     job.Title,
		Version:   job.Version,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	switch job.Status {
	case types.StatusCompleted, types.StatusApproved:
		view.Result = job.Result
	case types.StatusFailed:
		view.Error = job.Error
	}
	return view
}

func (s *server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "pong", nil)
}

// maxRequestBytes leaves headroom above the audio ceiling for the lyrics
// part and multipart framing.
const maxRequestBytes = 101 << 20

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeErrors(w, http.StatusBadRequest, "malformed multipart request")
		return
	}

	req := service.SubmitRequest{
		Artist: r.FormValue("artist"),
		Album:  r.FormValue("album"),
		Title:  r.FormValue("title"),
	}

	if file, header, err := r.FormFile("audio"); err == nil {
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeErrors(w, http.StatusBadRequest, "could not read audio file")
			return
		}
		req.Audio = data
		req.AudioFilename = header.Filename
		req.AudioContentType = header.Header.Get("Content-Type")
	}

	if file, header, err := r.FormFile("lyrics"); err == nil {
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeErrors(w, http.StatusBadRequest, "could not read lyrics file")
			return
		}
		req.Lyrics = data
		req.LyricsFilename = header.Filename
		req.LyricsContentType = header.Header.Get("Content-Type")
	}

	job, err := s.api.Submit(req)
	if err != nil {
		if types.IsValidation(err) {
			writeErrors(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("server: submit: %v", err)
		writeErrors(w, http.StatusInternalServerError, "submission failed")
		return
	}

	writeData(w, http.StatusAccepted, "transcription job started", map[string]interface{}{
		"job_id":  job.ID,
		"status":  job.Status,
		"version": job.Version,
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, err := s.api.Status(jobID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeErrors(w, http.StatusNotFound, "transcription job not found")
			return
		}
		log.Printf("server: status %s: %v", jobID, err)
		writeErrors(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeData(w, http.StatusOK, "success", viewOf(job))
}

type approveRequest struct {
	Artist  string `json:"artist"`
	Album   string `json:"album"`
	Title   string `json:"title"`
	Version int    `json:"version"`
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrors(w, http.StatusBadRequest, "malformed approve request")
		return
	}
	song := types.Song{Artist: req.Artist, Album: req.Album, Title: req.Title}

	job, moved, err := s.api.Approve(song, req.Version)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeErrors(w, http.StatusNotFound, err.Error())
			return
		}
		log.Printf("server: approve %s v%d: %v", song.Key(), req.Version, err)
		writeErrors(w, http.StatusInternalServerError, "approval failed")
		return
	}
	writeData(w, http.StatusOK, "transcription approved and moved successfully", map[string]interface{}{
		"job_id": job.ID,
		"status": job.Status,
		"files":  moved,
	})
}

// handleUploadURL assigns the next version for a song and returns a
// presigned URL for uploading the audio straight into the review bucket.
// The bucket's object-created notification completes the submission.
func (s *server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	song := types.Song{
		Artist: q.Get("artist"),
		Album:  q.Get("album"),
		Title:  q.Get("title"),
	}.Normalize()
	filename := q.Get("filename")
	if song.Artist == "" || song.Album == "" || song.Title == "" || filename == "" {
		writeErrors(w, http.StatusBadRequest, "artist, album, title and filename are required")
		return
	}

	version, err := s.versions.NextVersion(song)
	if err != nil {
		log.Printf("server: upload-url: %v", err)
		writeErrors(w, http.StatusInternalServerError, "could not assign version")
		return
	}
	url, err := s.signer.SignedPutURL(song, version, filename)
	if err != nil {
		log.Printf("server: upload-url: %v", err)
		writeErrors(w, http.StatusInternalServerError, "could not sign upload url")
		return
	}
	writeData(w, http.StatusOK, "success", map[string]interface{}{
		"url":     url,
		"version": version,
	})
}
