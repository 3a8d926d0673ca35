package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// TranscriptionInput is raw audio plus its MIME type. Callers holding a
// base64 data URI should go through ParseAudioDataURI first.
type TranscriptionInput struct {
	Data     []byte `validate:"required"`
	MIMEType string `validate:"required"`
}

// TranscriptionOutput is the transcribed text.
type TranscriptionOutput struct {
	Text string `json:"text"`
}

// MIME types the transcription backend accepts after normalization.
var supportedAudioMIMEs = map[string]string{
	"audio/wav":   "audio/wav",
	"audio/x-wav": "audio/wav",
	"audio/wave":  "audio/wav",
	"audio/mpeg":  "audio/mpeg",
	"audio/mp3":   "audio/mpeg",
	"audio/ogg":   "audio/ogg",
	"audio/webm":  "audio/webm",
	"audio/flac":  "audio/flac",
	"audio/aac":   "audio/aac",
	"audio/aiff":  "audio/aiff",
}

// ParseAudioDataURI decodes a "data:<mime>;base64,<data>" URI into a
// transcription input. Decode failures count as normalization failures.
func ParseAudioDataURI(uri string) (TranscriptionInput, error) {
	const capName = "transcribe_speech"
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return TranscriptionInput{}, upstreamErr(capName, errors.New("normalize audio: not a data URI"))
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return TranscriptionInput{}, upstreamErr(capName, errors.New("normalize audio: malformed data URI"))
	}
	mime := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return TranscriptionInput{}, upstreamErr(capName, fmt.Errorf("normalize audio: %w", err))
	}
	return TranscriptionInput{Data: data, MIMEType: mime}, nil
}

// Transcribe converts speech audio to text. Audio normalization (MIME
// mapping and format checks) happens here, before the upstream call, and
// its failures are reported separately from transcription failures.
func (c *Client) Transcribe(ctx context.Context, in TranscriptionInput) (*TranscriptionOutput, error) {
	const capName = "transcribe_speech"
	if err := c.validate.Struct(in); err != nil {
		return nil, validationErr(capName, err)
	}
	mime, ok := supportedAudioMIMEs[strings.ToLower(strings.TrimSpace(in.MIMEType))]
	if !ok {
		return nil, upstreamErr(capName, fmt.Errorf("normalize audio: unsupported mime type %q", in.MIMEType))
	}
	if c.speech == nil {
		return nil, upstreamErr(capName, errors.New("transcription backend not configured"))
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mime, Data: in.Data}},
			{Text: "Transcribe this audio. Output only the transcribed text."},
		},
	}}
	resp, err := c.speech.Models.GenerateContent(ctx, c.speechModel, contents, nil)
	if err != nil {
		return nil, upstreamErr(capName, fmt.Errorf("transcribe: %w", err))
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, upstreamErr(capName, errors.New("transcribe: empty transcription"))
	}
	return &TranscriptionOutput{Text: text}, nil
}
