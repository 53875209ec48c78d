package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"
)

// TTS synthesizes text into a WAV file at outputPath. A false/no-error
// return means synthesis silently produced nothing playable; callers treat
// it like an error without needing a distinct type.
type TTS interface {
	Synthesize(ctx context.Context, text, outputPath string) (bool, error)
}

// VoiceSwitcher is implemented by TTS engines that support switching voices
// at runtime, for the change_voice audio command. Engines without a notion
// of named voices (PiperTTS uses a fixed model file) simply don't implement
// it.
type VoiceSwitcher interface {
	SetVoice(name string)
}

// PiperTTS shells out to a local Piper binary, offline-first per the
// prototype's PiperTTS. Speed is expressed as Piper's length_scale, the
// inverse of speed (length_scale 1.0/speed).
type PiperTTS struct {
	Binary    string
	Model     string
	Config    string
	Speed     float64
	SpeakerID int
	Timeout   time.Duration
}

func NewPiperTTS(binary, model, config string, speed float64, speakerID int) (*PiperTTS, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("voice: piper binary not found: %s", binary)
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("voice: piper model not found: %s", model)
	}
	if speed <= 0 {
		speed = 1.0
	}
	return &PiperTTS{Binary: binary, Model: model, Config: config, Speed: speed, SpeakerID: speakerID, Timeout: 15 * time.Second}, nil
}

func (p *PiperTTS) Synthesize(ctx context.Context, text, outputPath string) (bool, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--model", p.Model,
		"--output_file", outputPath,
		"--length_scale", fmt.Sprintf("%.4f", 1.0/p.Speed),
	}
	if p.Config != "" {
		if _, err := os.Stat(p.Config); err == nil {
			args = append(args, "--config", p.Config)
		}
	}
	if p.SpeakerID > 0 {
		args = append(args, "--speaker", fmt.Sprintf("%d", p.SpeakerID))
	}

	cmd := exec.CommandContext(ctx, p.Binary, args...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return false, fmt.Errorf("voice: piper timed out")
		}
		return false, fmt.Errorf("voice: piper: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return false, nil
	}
	return true, nil
}

// OpenAITTS calls the hosted speech endpoint as a fallback.
type OpenAITTS struct {
	apiKey     string
	model      string
	voice      string
	httpClient *http.Client
}

func NewOpenAITTS(apiKey, model, voiceName string) *OpenAITTS {
	if model == "" {
		model = "tts-1"
	}
	if voiceName == "" {
		voiceName = "nova"
	}
	return &OpenAITTS{apiKey: apiKey, model: model, voice: voiceName, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// SetVoice changes the voice used for subsequent Synthesize calls.
func (o *OpenAITTS) SetVoice(name string) {
	o.voice = name
}

func (o *OpenAITTS) Synthesize(ctx context.Context, text, outputPath string) (bool, error) {
	if o.apiKey == "" {
		return false, fmt.Errorf("voice: openai tts: no API key configured")
	}
	payload := fmt.Sprintf(`{"model":%q,"voice":%q,"input":%q,"response_format":"wav"}`, o.model, o.voice, text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/audio/speech", bytes.NewReader([]byte(payload)))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("voice: openai tts transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("voice: openai tts failed (%d): %s", resp.StatusCode, string(raw))
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return false, err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return false, err
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		return false, nil
	}
	return true, nil
}

// FallbackTTS tries Primary, then Secondary if Primary fails or produces
// nothing playable. Secondary may be nil.
type FallbackTTS struct {
	Primary   TTS
	Secondary TTS
}

// SetVoice forwards to whichever of Primary/Secondary supports voice
// switching.
func (f FallbackTTS) SetVoice(name string) {
	if vs, ok := f.Primary.(VoiceSwitcher); ok {
		vs.SetVoice(name)
	}
	if vs, ok := f.Secondary.(VoiceSwitcher); ok {
		vs.SetVoice(name)
	}
}

func (f FallbackTTS) Synthesize(ctx context.Context, text, outputPath string) (bool, error) {
	ok, err := f.Primary.Synthesize(ctx, text, outputPath)
	if err == nil && ok {
		return true, nil
	}
	if f.Secondary == nil {
		return ok, err
	}
	return f.Secondary.Synthesize(ctx, text, outputPath)
}
