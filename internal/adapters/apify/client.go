package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"clipforge/internal/core/domain"
	"clipforge/pkg/timeutil"
)

const (
	DefaultBaseURL = "https://api.apify.com/v2"
	// streamers/youtube-scraper
	DefaultActorID = "h7sDV53CddomktSi5"
)

// Config configures the hosted metadata lookup.
type Config struct {
	Token        string
	ActorID      string
	BaseURL      string
	PollInterval time.Duration
	Timeout      time.Duration
}

// MetadataClient implements ports.MetadataSource using an Apify actor run.
type MetadataClient struct {
	cfg    Config
	client *http.Client
	logger hclog.Logger
}

// NewMetadataClient creates a new MetadataClient. It fails when no API token
// is configured.
func NewMetadataClient(cfg Config, logger hclog.Logger) (*MetadataClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("APIFY_API_TOKEN environment variable not set")
	}
	if cfg.ActorID == "" {
		cfg.ActorID = DefaultActorID
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &MetadataClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("apify"),
	}, nil
}

// ResolveMetadata runs the actor for videoURL and normalises the first
// dataset item.
func (s *MetadataClient) ResolveMetadata(ctx context.Context, videoURL string) (domain.VideoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	runID, err := s.startActorRun(ctx, videoURL)
	if err != nil {
		return domain.VideoMetadata{}, fmt.Errorf("failed to start actor run: %w", err)
	}
	s.logger.Debug("actor run started", "run_id", runID)

	rawData, err := s.waitAndGetResults(ctx, runID)
	if err != nil {
		return domain.VideoMetadata{}, fmt.Errorf("failed to get results: %w", err)
	}

	return parseDatasetItems(rawData)
}

func (s *MetadataClient) startActorRun(ctx context.Context, videoURL string) (string, error) {
	endpoint := fmt.Sprintf("%s/acts/%s/runs?token=%s", s.cfg.BaseURL, s.cfg.ActorID, url.QueryEscape(s.cfg.Token))

	input := map[string]interface{}{
		"startUrls":  []map[string]string{{"url": videoURL}},
		"maxResults": 1,
	}
	body, err := json.Marshal(input)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("failed to start actor: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("actor run response carried no id")
	}
	return result.Data.ID, nil
}

func (s *MetadataClient) waitAndGetResults(ctx context.Context, runID string) ([]byte, error) {
	statusURL := fmt.Sprintf("%s/actor-runs/%s?token=%s", s.cfg.BaseURL, runID, url.QueryEscape(s.cfg.Token))

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("run status request failed: status %d", resp.StatusCode)
		}

		var status struct {
			Data struct {
				Status           string `json:"status"`
				DefaultDatasetID string `json:"defaultDatasetId"`
			} `json:"data"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		switch status.Data.Status {
		case "SUCCEEDED":
			return s.getDatasetItems(ctx, status.Data.DefaultDatasetID)
		case "FAILED", "ABORTED", "TIMED-OUT":
			return nil, fmt.Errorf("actor run failed with status: %s", status.Data.Status)
		}
	}
}

func (s *MetadataClient) getDatasetItems(ctx context.Context, datasetID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/items?token=%s", s.cfg.BaseURL, datasetID, url.QueryEscape(s.cfg.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dataset request failed: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type datasetItem struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	ThumbnailURL string          `json:"thumbnailUrl"`
	ChannelName  string          `json:"channelName"`
	Duration     json.RawMessage `json:"duration"`
}

func parseDatasetItems(rawData []byte) (domain.VideoMetadata, error) {
	var items []datasetItem
	if err := json.Unmarshal(rawData, &items); err != nil {
		return domain.VideoMetadata{}, err
	}
	if len(items) == 0 {
		return domain.VideoMetadata{}, fmt.Errorf("no results returned from scraper")
	}

	item := items[0]
	duration, err := parseDuration(item.Duration)
	if err != nil {
		return domain.VideoMetadata{}, err
	}
	return domain.VideoMetadata{
		Title:     item.Title,
		Duration:  duration,
		Thumbnail: item.ThumbnailURL,
		Channel:   item.ChannelName,
		ID:        item.ID,
	}, nil
}

// parseDuration accepts either seconds or a "HH:MM:SS" string.
func parseDuration(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	var secs float64
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
		v, err := timeutil.ParseTimeToSeconds(text)
		if err != nil {
			return 0, fmt.Errorf("unrecognised duration %q: %w", text, err)
		}
		secs = v
	} else if err := json.Unmarshal(raw, &secs); err != nil {
		return 0, fmt.Errorf("unrecognised duration %s", string(raw))
	}

	if secs < 0 {
		return 0, nil
	}
	return int(math.Round(secs)), nil
}
