package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// STT converts a recorded WAV file into text. Engines return an error when
// recognition fails and may return "" with no error when nothing was heard;
// the arbiter treats an error and "" alike, as "nothing heard".
type STT interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// WhisperCppSTT shells out to a local whisper.cpp binary, offline-first per
// the prototype's WhisperCppSTT. Ported from
// igoryanba-ricochet/internal/whisper/transcribe.go's subprocess+output
// filtering shape, generalized from the ffmpeg+whisper.cpp dual-stage
// pipeline (that one transcodes ogg voice notes; this one already receives
// a 16kHz mono WAV from Recorder, so only the whisper.cpp stage applies).
type WhisperCppSTT struct {
	Binary   string
	Model    string
	Language string
	Threads  int
	Timeout  time.Duration
}

func NewWhisperCppSTT(binary, model, language string, threads int) (*WhisperCppSTT, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("voice: whisper.cpp binary not found: %s", binary)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("voice: whisper.cpp model not found: %s", model)
	}
	if language == "" {
		language = "auto"
	}
	if threads <= 0 {
		threads = 4
	}
	return &WhisperCppSTT{Binary: binary, Model: model, Language: language, Threads: threads, Timeout: 30 * time.Second}, nil
}

func (w *WhisperCppSTT) Transcribe(ctx context.Context, wavPath string) (string, error) {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	txtPath := wavPath + ".txt"
	defer os.Remove(txtPath)

	cmd := exec.CommandContext(ctx, w.Binary,
		"-m", w.Model,
		"-f", wavPath,
		"-l", w.Language,
		"-t", fmt.Sprintf("%d", w.Threads),
		"--no-timestamps",
		"-otxt",
	)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("voice: whisper.cpp timed out")
		}
		return "", fmt.Errorf("voice: whisper.cpp: %w", err)
	}

	if data, err := os.ReadFile(txtPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	return filterWhisperOutput(stdout.String()), nil
}

func filterWhisperOutput(raw string) string {
	var kept []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, " ")
}

// OpenAIWhisperSTT calls the hosted transcription endpoint as a fallback
// when the local engine is unavailable or errors out. Ported from
// igoryanba-ricochet/core/internal/whisper/openai.go's multipart upload.
type OpenAIWhisperSTT struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIWhisperSTT(apiKey, model string) *OpenAIWhisperSTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAIWhisperSTT{apiKey: apiKey, model: model, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (o *OpenAIWhisperSTT) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("voice: openai whisper: no API key configured")
	}
	file, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("voice: open recording: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	writer.WriteField("model", o.model)
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/audio/transcriptions", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice: openai whisper transport: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("voice: openai whisper failed (%d): %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("voice: decode transcription: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// FallbackSTT tries Primary, then Secondary if Primary errors or returns
// nothing. Secondary may be nil, in which case a Primary failure is final.
type FallbackSTT struct {
	Primary   STT
	Secondary STT
}

func (f FallbackSTT) Transcribe(ctx context.Context, wavPath string) (string, error) {
	text, err := f.Primary.Transcribe(ctx, wavPath)
	if err == nil && text != "" {
		return text, nil
	}
	if f.Secondary == nil {
		return text, err
	}
	return f.Secondary.Transcribe(ctx, wavPath)
}
