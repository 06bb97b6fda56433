package service

import (
	"strings"
	"unicode/utf8"

	"example.com/soundsright/internal/types"
)

const maxAudioBytes = 100 << 20 // 100 MiB

var allowedAudioExtensions = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"flac": true,
}

var allowedAudioContentTypes = map[string]bool{
	"audio/wav":  true,
	"audio/mp3":  true,
	"audio/flac": true,
	"audio/mpeg": true,
}

func validateSubmit(req *SubmitRequest) error {
	if strings.TrimSpace(req.Artist) == "" {
		return types.Invalid("artist", "no artist provided")
	}
	if strings.TrimSpace(req.Album) == "" {
		return types.Invalid("album", "no album provided")
	}
	if strings.TrimSpace(req.Title) == "" {
		return types.Invalid("title", "no title provided")
	}
	if err := validateAudio(req); err != nil {
		return err
	}
	if req.Lyrics != nil {
		return validateLyrics(req)
	}
	return nil
}

func validateAudio(req *SubmitRequest) error {
	if req.AudioFilename == "" {
		return types.Invalid("audio", "no audio file provided")
	}
	if ext, ok := extension(req.AudioFilename); ok && !allowedAudioExtensions[ext] {
		return types.Invalid("audio", "invalid audio file extension")
	}
	if len(req.Audio) == 0 {
		return types.Invalid("audio", "audio file is empty")
	}
	if len(req.Audio) > maxAudioBytes {
		return types.Invalid("audio", "audio file is too large")
	}
	if !allowedAudioContentTypes[req.AudioContentType] {
		return types.Invalid("audio", "invalid audio file format")
	}
	return nil
}

func validateLyrics(req *SubmitRequest) error {
	if req.LyricsContentType != "text/plain" {
		return types.Invalid("lyrics", "lyrics file must be a text file")
	}
	if ext, ok := extension(req.LyricsFilename); ok && ext != "txt" {
		return types.Invalid("lyrics", "lyrics file must have a .txt extension")
	}
	if !utf8.Valid(req.Lyrics) {
		return types.Invalid("lyrics", "lyrics file is not valid text")
	}
	return nil
}

// extension returns the lowercased part after the final dot, and whether the
// filename has one at all. Files without an extension fall through to the
// content-type check.
func extension(filename string) (string, bool) {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return "", false
	}
	return strings.ToLower(filename[i+1:]), true
}
