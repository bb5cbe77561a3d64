package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"podnotes/internal/feed"
)

// PaidStrategy sends the episode audio URL to a hosted transcription
// service. Used only when no free transcript exists; the returned cost is
// recorded by the caller.
type PaidStrategy struct {
	serviceURL string
	apiKey     string
	client     *http.Client
}

// NewPaidStrategy creates the paid transcription strategy. The API key is
// read from the named environment variable.
func NewPaidStrategy(serviceURL, apiKeyEnv string) *PaidStrategy {
	return &PaidStrategy{
		serviceURL: serviceURL,
		apiKey:     os.Getenv(apiKeyEnv),
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *PaidStrategy) Tag() string { return SourcePaid }

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcribeResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Cost     float64 `json:"cost"`
}

// Fetch submits the audio URL for transcription, retrying transient server
// errors with exponential backoff. Declines when the service is not
// configured or the episode has no audio.
func (s *PaidStrategy) Fetch(ctx context.Context, ep feed.Episode) (*Transcript, error) {
	if s.serviceURL == "" {
		return nil, fmt.Errorf("transcription service not configured: %w", ErrDeclined)
	}
	if ep.AudioURL == "" {
		return nil, fmt.Errorf("episode has no audio: %w", ErrDeclined)
	}

	payload, err := json.Marshal(transcribeRequest{AudioURL: ep.AudioURL})
	if err != nil {
		return nil, fmt.Errorf("marshaling transcription request: %w", err)
	}

	var result transcribeResponse
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", s.serviceURL+"/v1/transcribe", bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return fmt.Errorf("transcription server error %d: %s", resp.StatusCode, body)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("transcription request rejected %d: %s", resp.StatusCode, body))
		}

		if err := json.Unmarshal(body, &result); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding transcription response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("paid transcription: %w", err)
	}

	if result.Text == "" {
		return nil, fmt.Errorf("transcription service returned empty text")
	}

	return &Transcript{
		EpisodeID: ep.ID(),
		Source:    SourcePaid,
		Text:      result.Text,
		Language:  result.Language,
		Cost:      result.Cost,
	}, nil
}
