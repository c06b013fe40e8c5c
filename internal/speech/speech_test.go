package speech

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"voicestack.local/voicegate/internal/faults"
)

func wavBytes(payload string) []byte {
	header := []byte("RIFF\x24\x00\x00\x00WAVE")
	return append(header, []byte(payload)...)
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name  string
		data  []byte
		want  string
		valid bool
	}{
		{"wav", wavBytes("data"), "wav", true},
		{"ogg", []byte("OggS....."), "ogg", true},
		{"flac", []byte("fLaC....."), "flac", true},
		{"mp3 id3", []byte("ID3......"), "mp3", true},
		{"mp3 frame", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3", true},
		{"webm", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x00}, "webm", true},
		{"text", []byte("hello there"), "", false},
		{"empty", nil, "", false},
	}
	for _, tc := range cases {
		format, ok := DetectFormat(tc.data)
		if ok != tc.valid {
			t.Fatalf("%s: expected valid=%v, got %v", tc.name, tc.valid, ok)
		}
		if format != tc.want {
			t.Fatalf("%s: expected format %q, got %q", tc.name, tc.want, format)
		}
	}
}

func TestWhisperTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/inference" {
			t.Fatalf("expected /inference, got %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("read form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "utterance.wav" {
			t.Fatalf("unexpected upload filename: %s", header.Filename)
		}
		if _, err := io.ReadAll(file); err != nil {
			t.Fatalf("read upload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " summarize the last discussion "})
	}))
	defer server.Close()

	client := NewWhisperClient(server.URL, WithWhisperHTTPClient(server.Client()))
	text, err := client.Transcribe(context.Background(), wavBytes("pcm"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "summarize the last discussion" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

func TestWhisperTranscribeRejectsUnknownFormat(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewWhisperClient(server.URL, WithWhisperHTTPClient(server.Client()))
	_, err := client.Transcribe(context.Background(), []byte("plain text, not audio"))
	if !errors.Is(err, faults.ErrUnsupportedAudioFormat) {
		t.Fatalf("expected ErrUnsupportedAudioFormat, got %v", err)
	}
	if called {
		t.Fatalf("expected no upstream call for unsupported format")
	}
}

func TestWhisperTranscribeUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewWhisperClient(server.URL)
	_, err := client.Transcribe(context.Background(), wavBytes("pcm"))
	if !errors.Is(err, faults.ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}

func TestWhisperTranscribeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewWhisperClient(server.URL, WithWhisperHTTPClient(server.Client()))
	_, err := client.Transcribe(context.Background(), wavBytes("pcm"))
	if !errors.Is(err, faults.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestPiperSynthesizeSuccess(t *testing.T) {
	var seen map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("content-type", "audio/wav")
		_, _ = w.Write(wavBytes("synth"))
	}))
	defer server.Close()

	client := NewPiperClient(server.URL, WithPiperVoice("en_US-amy-medium"), WithPiperHTTPClient(server.Client()))
	audio, err := client.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if seen["text"] != "hello world" {
		t.Fatalf("unexpected text sent: %q", seen["text"])
	}
	if seen["voice"] != "en_US-amy-medium" {
		t.Fatalf("unexpected voice sent: %q", seen["voice"])
	}
	if format, ok := DetectFormat(audio); !ok || format != "wav" {
		t.Fatalf("expected wav audio back, got format=%q ok=%v", format, ok)
	}
}

func TestPiperSynthesizeRejectsEmptyText(t *testing.T) {
	client := NewPiperClient("http://127.0.0.1:0")
	if _, err := client.Synthesize(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty text")
	}
}

func TestPiperSynthesizeNonAudioResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer server.Close()

	client := NewPiperClient(server.URL, WithPiperHTTPClient(server.Client()))
	_, err := client.Synthesize(context.Background(), "hello")
	if !errors.Is(err, faults.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}
