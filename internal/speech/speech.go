// Package speech fronts the external speech runtimes: a whisper-style
// transcription server and a piper-style synthesis server. Both adapters
// are stateless and single-shot; retry policy belongs to the caller.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"voicestack.local/voicegate/internal/faults"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// DetectFormat sniffs the audio container from its magic bytes.
func DetectFormat(audio []byte) (string, bool) {
	switch {
	case len(audio) >= 12 && bytes.HasPrefix(audio, []byte("RIFF")) && bytes.Equal(audio[8:12], []byte("WAVE")):
		return "wav", true
	case bytes.HasPrefix(audio, []byte("OggS")):
		return "ogg", true
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return "flac", true
	case bytes.HasPrefix(audio, []byte("ID3")):
		return "mp3", true
	case len(audio) >= 2 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return "mp3", true
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "webm", true
	default:
		return "", false
	}
}

func validateAudio(audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: empty audio payload", faults.ErrUnsupportedAudioFormat)
	}
	format, ok := DetectFormat(audio)
	if !ok {
		return "", fmt.Errorf("%w: unrecognized container", faults.ErrUnsupportedAudioFormat)
	}
	return format, nil
}

func classifyTransportError(service string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", faults.ErrGatewayTimeout, service, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", faults.ErrGatewayTimeout, service, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", faults.ErrGatewayUnavailable, service, err)
}
