package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"
)

// FileSource reads a signal from a JSON document dropped on disk by an
// external producer. Policy, vision, agent swarm and news feeds all publish
// through this adapter, differing only in name, TTL and which extra fields
// are lifted into metadata.
type FileSource struct {
	name     string
	path     string
	ttl      time.Duration
	metaKeys []string
}

func NewFileSource(name, path string, ttl time.Duration, metaKeys ...string) *FileSource {
	return &FileSource{name: name, path: path, ttl: ttl, metaKeys: metaKeys}
}

// NewPolicySource reads reinforcement policy output.
func NewPolicySource(path string, ttl time.Duration) *FileSource {
	return NewFileSource(SourcePolicy, path, ttl)
}

// NewVisionSource reads chart analysis output. The sentiment field is encoded
// as +1 bullish, -1 bearish, 0 neutral.
func NewVisionSource(path string, ttl time.Duration) *FileSource {
	return NewFileSource(SourceVision, path, ttl, "sentiment")
}

// NewAgentsSource reads agent swarm output. The spike field is encoded as
// +1 bullish spike, -1 bearish spike, 0 none.
func NewAgentsSource(path string, ttl time.Duration) *FileSource {
	return NewFileSource(SourceAgents, path, ttl, "spike")
}

// NewNewsSource reads the news feed aggregate. Sentiment is in [-1, 1] and
// article_count drives confidence downstream.
func NewNewsSource(path string, ttl time.Duration) *FileSource {
	return NewFileSource(SourceNews, path, ttl, "sentiment", "article_count")
}

func (s *FileSource) Name() string       { return s.name }
func (s *FileSource) TTL() time.Duration { return s.ttl }

func (s *FileSource) Fetch(ctx context.Context) (Signal, error) {
	if err := ctx.Err(); err != nil {
		return Signal{}, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Signal{}, fmt.Errorf("%w: %s payload missing at %s", ErrUnavailable, s.name, s.path)
		}
		return Signal{}, fmt.Errorf("read %s payload: %w", s.name, err)
	}
	return s.parse(raw)
}

func (s *FileSource) parse(raw []byte) (Signal, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Signal{}, fmt.Errorf("%w: %s payload is not JSON: %v", ErrInvalidPayload, s.name, err)
	}
	if err := ValidatePayload(doc); err != nil {
		return Signal{}, fmt.Errorf("%s payload: %w", s.name, err)
	}

	body := gjson.ParseBytes(raw)
	action := Action(body.Get("action").String())
	if !action.Valid() {
		return Signal{}, fmt.Errorf("%w: %s action %q", ErrInvalidPayload, s.name, body.Get("action").String())
	}
	ts, err := time.Parse(time.RFC3339, body.Get("timestamp").String())
	if err != nil {
		return Signal{}, fmt.Errorf("%w: %s timestamp: %v", ErrInvalidPayload, s.name, err)
	}

	sig := Signal{
		Action:     action,
		Strength:   body.Get("strength").Float(),
		Confidence: body.Get("confidence").Float(),
		Metadata:   map[string]float64{},
		Timestamp:  ts,
	}
	for _, key := range s.metaKeys {
		if v := body.Get("metadata." + key); v.Exists() {
			sig.Metadata[key] = v.Float()
		}
	}
	return sig, nil
}
