package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"example.com/soundsright/internal/types"
)

const (
	DefaultWhisperCommand = "whisper"
	DefaultWhisperModel   = "base"
	DefaultDemucsCommand  = "demucs"
	demucsModel           = "htdemucs"
)

// WhisperCLI runs OpenAI Whisper as an external command, optionally after a
// Demucs vocal-separation pass. Both tools read and write through a private
// temp directory that is removed when the call returns.
type WhisperCLI struct {
	Command string
	Model   string
	// DemucsCommand enables vocal separation before recognition when set.
	DemucsCommand string
}

func NewWhisperCLI(command, model, demucsCommand string) *WhisperCLI {
	if command == "" {
		command = DefaultWhisperCommand
	}
	if model == "" {
		model = DefaultWhisperModel
	}
	return &WhisperCLI{Command: command, Model: model, DemucsCommand: demucsCommand}
}

// whisperOutput mirrors the JSON whisper writes with word timestamps on.
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

func (t *WhisperCLI) Transcribe(audioPath string, lyrics *string) (*types.Transcript, error) {
	workDir, err := os.MkdirTemp("", "soundsright-transcribe-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := audioPath
	if t.DemucsCommand != "" {
		input, err = t.separateVocals(audioPath, workDir)
		if err != nil {
			return nil, err
		}
	}

	out, err := t.runWhisper(input, workDir)
	if err != nil {
		return nil, err
	}
	return buildTranscript(out, lyrics), nil
}

// separateVocals isolates the vocal stem so recognition does not fight the
// instrumental. Output lands at <workDir>/<model>/<basename>/vocals.wav.
func (t *WhisperCLI) separateVocals(audioPath, workDir string) (string, error) {
	cmd := exec.Command(t.DemucsCommand,
		"--two-stems=vocals",
		"-n", demucsModel,
		"-o", workDir,
		audioPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("vocal separation: %w: %s", err, strings.TrimSpace(string(output)))
	}
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	vocals := filepath.Join(workDir, demucsModel, base, "vocals.wav")
	if _, err := os.Stat(vocals); err != nil {
		return "", fmt.Errorf("vocal separation produced no output at %s: %w", vocals, err)
	}
	return vocals, nil
}

func (t *WhisperCLI) runWhisper(audioPath, workDir string) (*whisperOutput, error) {
	cmd := exec.Command(t.Command,
		audioPath,
		"--model", t.Model,
		"--output_format", "json",
		"--output_dir", workDir,
		"--word_timestamps", "True",
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("whisper: %w: %s", err, strings.TrimSpace(string(output)))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	resultPath := filepath.Join(workDir, base+".json")
	data, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode whisper output: %w", err)
	}
	return &out, nil
}

func buildTranscript(out *whisperOutput, lyrics *string) *types.Transcript {
	transcript := &types.Transcript{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
	}

	var probSum float64
	var probCount int
	for _, seg := range out.Segments {
		segment := types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
		for _, w := range seg.Words {
			segment.Words = append(segment.Words, types.Word{
				Word:  strings.TrimSpace(w.Word),
				Start: w.Start,
				End:   w.End,
			})
			probSum += w.Probability
			probCount++
		}
		transcript.Segments = append(transcript.Segments, segment)
		if seg.End > transcript.DurationSeconds {
			transcript.DurationSeconds = seg.End
		}
	}
	if probCount > 0 {
		transcript.Confidence = probSum / float64(probCount)
	}
	if lyrics != nil && *lyrics != "" {
		transcript.Segments = AlignLyrics(*lyrics, transcript.Segments)
	}
	return transcript
}
