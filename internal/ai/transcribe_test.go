package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestParseAudioDataURI(t *testing.T) {
	payload := []byte("RIFF....WAVE")
	uri := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(payload)

	in, err := ParseAudioDataURI(uri)
	if err != nil {
		t.Fatalf("ParseAudioDataURI: %v", err)
	}
	if in.MIMEType != "audio/wav" {
		t.Fatalf("unexpected mime %q", in.MIMEType)
	}
	if string(in.Data) != string(payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestParseAudioDataURIRejectsGarbage(t *testing.T) {
	cases := []string{
		"not a data uri",
		"data:audio/wav;base64",
		"data:audio/wav;base64,%%%not-base64%%%",
	}
	for _, uri := range cases {
		_, err := ParseAudioDataURI(uri)
		var ue *UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("uri %q: expected UpstreamError, got %v", uri, err)
		}
	}
}

func TestTranscribeValidatesInput(t *testing.T) {
	c := &Client{validate: validator.New()}

	_, err := c.Transcribe(context.Background(), TranscriptionInput{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTranscribeRejectsUnsupportedMIME(t *testing.T) {
	c := &Client{validate: validator.New()}

	_, err := c.Transcribe(context.Background(), TranscriptionInput{Data: []byte("x"), MIMEType: "video/mp4"})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError for unsupported mime, got %v", err)
	}
}

func TestTranscribeWithoutBackend(t *testing.T) {
	c := &Client{validate: validator.New()}

	_, err := c.Transcribe(context.Background(), TranscriptionInput{Data: []byte("x"), MIMEType: "audio/mp3"})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError when speech backend missing, got %v", err)
	}
}

func TestAudioMIMENormalization(t *testing.T) {
	cases := map[string]string{
		"audio/x-wav": "audio/wav",
		"audio/wave":  "audio/wav",
		"audio/mp3":   "audio/mpeg",
		"audio/webm":  "audio/webm",
	}
	for in, want := range cases {
		got, ok := supportedAudioMIMEs[in]
		if !ok || got != want {
			t.Fatalf("mime %q: got %q ok=%v, want %q", in, got, ok, want)
		}
	}
}
