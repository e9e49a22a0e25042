package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kenken64/7monthIndicator-sub000/internal/logger"
)

const (
	fearGreedEndpoint       = "https://api.alternative.me/fng/?limit=1"
	fearGreedErrorBackoff   = 2 * time.Minute
	fearGreedFallbackUpdate = 12 * time.Hour
)

type FearGreedData struct {
	Value          int
	Classification string
	Timestamp      time.Time
	LastUpdate     time.Time
	Error          string
}

// FearGreedService polls the alternative.me index and caches the latest value.
// The snapshot source reads it without blocking on the network.
type FearGreedService struct {
	endpoint string
	client   *http.Client

	mu         sync.RWMutex
	data       FearGreedData
	nextUpdate time.Time
	refreshMu  sync.Mutex
}

func NewFearGreedService() *FearGreedService {
	return &FearGreedService{
		endpoint: fearGreedEndpoint,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (s *FearGreedService) Get() (FearGreedData, bool) {
	if s == nil {
		return FearGreedData{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok := !s.data.LastUpdate.IsZero() && s.data.Error == ""
	return s.data, ok
}

func (s *FearGreedService) RefreshIfStale(ctx context.Context) {
	if s == nil {
		return
	}
	now := time.Now()
	s.mu.RLock()
	next := s.nextUpdate
	last := s.data.LastUpdate
	s.mu.RUnlock()
	if !last.IsZero() && !next.IsZero() && now.Before(next) {
		return
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	next = s.nextUpdate
	last = s.data.LastUpdate
	s.mu.RUnlock()
	if !last.IsZero() && !next.IsZero() && now.Before(next) {
		return
	}
	if err := s.refresh(ctx); err != nil {
		logger.Warnf("fear & greed refresh failed: %v", err)
	}
}

type fearGreedResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
		Timestamp           string `json:"timestamp"`
	} `json:"data"`
	Metadata struct {
		Error interface{} `json:"error"`
	} `json:"metadata"`
}

func (s *FearGreedService) refresh(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("fear & greed service not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		s.setError(err)
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		s.setError(err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		s.setError(err)
		return err
	}

	var payload fearGreedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		s.setError(err)
		return err
	}
	if payload.Metadata.Error != nil {
		err := fmt.Errorf("api error: %v", payload.Metadata.Error)
		s.setError(err)
		return err
	}
	if len(payload.Data) == 0 {
		err := fmt.Errorf("api data empty")
		s.setError(err)
		return err
	}

	item := payload.Data[0]
	value, err := strconv.Atoi(strings.TrimSpace(item.Value))
	if err != nil {
		s.setError(fmt.Errorf("api data invalid: %w", err))
		return err
	}
	var ts time.Time
	if raw := strings.TrimSpace(item.Timestamp); raw != "" {
		if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ts = time.Unix(sec, 0).UTC()
		}
	}

	now := time.Now()
	s.setData(FearGreedData{
		Value:          value,
		Classification: strings.TrimSpace(item.ValueClassification),
		Timestamp:      ts,
		LastUpdate:     now,
	}, now.Add(fearGreedFallbackUpdate))
	return nil
}

func (s *FearGreedService) setError(err error) {
	if s == nil {
		return
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.setData(FearGreedData{LastUpdate: now, Error: msg}, now.Add(fearGreedErrorBackoff))
}

func (s *FearGreedService) setData(data FearGreedData, next time.Time) {
	s.mu.Lock()
	s.data = data
	s.nextUpdate = next
	s.mu.Unlock()
}
