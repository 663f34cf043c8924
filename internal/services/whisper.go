package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bobarin/reelmaker/internal/captions"
	"github.com/bobarin/reelmaker/internal/models"
)

// ---------------------------------------------------------------------------
// Whisper Transcription — word-level timestamps for auto captions
// ---------------------------------------------------------------------------

// WhisperTranscriber calls OpenAI Whisper with the key supplied per job.
type WhisperTranscriber struct {
	baseURL string
}

func NewWhisperTranscriber() *WhisperTranscriber {
	return &WhisperTranscriber{}
}

// NewWhisperTranscriberWithBaseURL targets an OpenAI-compatible endpoint.
func NewWhisperTranscriberWithBaseURL(baseURL string) *WhisperTranscriber {
	return &WhisperTranscriber{baseURL: baseURL}
}

// Transcribe returns the words of the narration with millisecond timing.
// Failures wrap models.ErrTranscription.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath, apiKey string) ([]captions.Word, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: no API key", models.ErrTranscription)
	}

	cfg := openai.DefaultConfig(apiKey)
	if t.baseURL != "" {
		cfg.BaseURL = t.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: whisper transcription failed: %v", models.ErrTranscription, err)
	}

	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("%w: whisper returned no word timestamps (text: %q)", models.ErrTranscription, truncateString(resp.Text, 80))
	}

	words := make([]captions.Word, 0, len(resp.Words))
	for _, w := range resp.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" {
			continue
		}
		words = append(words, captions.Word{
			Text:    text,
			StartMs: int64(math.Round(w.Start * 1000)),
			EndMs:   int64(math.Round(w.End * 1000)),
		})
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs, text: %q)",
		len(words), resp.Duration, truncateString(resp.Text, 80))

	return words, nil
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
