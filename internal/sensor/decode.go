// Package sensor adapts face-analysis SDK output into raw engagement samples.
package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

// ErrEmptyPayload is returned by Decode for blank input.
var ErrEmptyPayload = errors.New("empty sensor payload")

// attentionKeys are checked in order; the first present key wins even if
// its value turns out not to be numeric.
var attentionKeys = []string{"attention", "att", "score"}

// Decode parses one SDK event body. The body may wrap its fields in an
// "output" object. Unrecognised or malformed values decode as absent;
// only syntactically invalid JSON is an error.
func Decode(data []byte) (domain.RawSample, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return domain.RawSample{}, ErrEmptyPayload
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.RawSample{}, fmt.Errorf("decode sensor payload: %w", err)
	}
	return DecodePayload(payload), nil
}

// DecodePayload extracts a sample from an already-parsed event body.
func DecodePayload(payload map[string]any) domain.RawSample {
	at := payload["at"]
	if out, ok := payload["output"].(map[string]any); ok && len(out) > 0 {
		if v, has := out["at"]; has {
			at = v
		}
		payload = out
	}
	return domain.RawSample{
		Attention: Attention(payload),
		Emotion:   DominantEmotion(payload),
		At:        timestamp(at),
	}
}

// Attention reads the attention score from the first present key of
// attention, att and score.
func Attention(payload map[string]any) *float64 {
	for _, key := range attentionKeys {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := v.(float64); ok {
			return &f
		}
		return nil
	}
	return nil
}

// DominantEmotion reads the dominant emotion label. It accepts, in order:
// dominantEmotion as a string, dominantEmotion as {"emotion": label}, and
// the highest-probability entry of an "emotions" or "emotion" map.
func DominantEmotion(payload map[string]any) *string {
	switch d := payload["dominantEmotion"].(type) {
	case string:
		return &d
	case map[string]any:
		if e, ok := d["emotion"].(string); ok {
			return &e
		}
	}
	if probs, ok := payload["emotions"].(map[string]any); ok {
		return argmax(probs)
	}
	if probs, ok := payload["emotion"].(map[string]any); ok {
		return argmax(probs)
	}
	if label, ok := payload["emotion"].(string); ok {
		return &label
	}
	return nil
}

// argmax returns the label with the highest numeric probability. Ties go
// to the lexically smallest label.
func argmax(probs map[string]any) *string {
	labels := make([]string, 0, len(probs))
	for k := range probs {
		labels = append(labels, k)
	}
	sort.Strings(labels)

	var (
		best  string
		bestP float64
		found bool
	)
	for _, label := range labels {
		p, ok := probs[label].(float64)
		if !ok {
			continue
		}
		if !found || p > bestP {
			best, bestP, found = label, p, true
		}
	}
	if !found {
		return nil
	}
	return &best
}

func timestamp(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	case float64:
		// Unix milliseconds.
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}
