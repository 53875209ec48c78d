package voice

import (
	"context"
	"errors"
	"testing"
)

type fakeTTS struct {
	ok  bool
	err error
}

func (f fakeTTS) Synthesize(ctx context.Context, text, outputPath string) (bool, error) {
	return f.ok, f.err
}

func TestFallbackTTSUsesPrimaryWhenItSucceeds(t *testing.T) {
	f := FallbackTTS{Primary: fakeTTS{ok: true}, Secondary: fakeTTS{ok: false}}
	ok, err := f.Synthesize(context.Background(), "hi", "out.wav")
	if err != nil || !ok {
		t.Fatalf("expected primary to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestFallbackTTSFallsBackOnError(t *testing.T) {
	f := FallbackTTS{Primary: fakeTTS{err: errors.New("boom")}, Secondary: fakeTTS{ok: true}}
	ok, err := f.Synthesize(context.Background(), "hi", "out.wav")
	if err != nil || !ok {
		t.Fatalf("expected fallback to succeed, got ok=%v err=%v", ok, err)
	}
}

func TestFallbackTTSFallsBackWhenPrimaryProducesNothing(t *testing.T) {
	f := FallbackTTS{Primary: fakeTTS{ok: false}, Secondary: fakeTTS{ok: true}}
	ok, _ := f.Synthesize(context.Background(), "hi", "out.wav")
	if !ok {
		t.Fatalf("expected fallback when primary produces no audio")
	}
}

func TestFallbackTTSReturnsPrimaryResultWithNoSecondary(t *testing.T) {
	f := FallbackTTS{Primary: fakeTTS{ok: false}}
	ok, err := f.Synthesize(context.Background(), "hi", "out.wav")
	if ok || err != nil {
		t.Fatalf("expected primary's plain failure to surface, got ok=%v err=%v", ok, err)
	}
}

func TestOpenAITTSErrorsWithoutAPIKey(t *testing.T) {
	tts := NewOpenAITTS("", "", "")
	_, err := tts.Synthesize(context.Background(), "hello", "out.wav")
	if err == nil {
		t.Fatalf("expected an error when no API key is configured")
	}
}
