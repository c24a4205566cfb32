package comfyui

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
)

// QueueEntry is one row of the engine queue. On the wire it is a positional
// array: [number, prompt_id, prompt, extra_data, outputs_to_execute].
type QueueEntry struct {
	Number   int
	PromptID string
	Outputs  []json.RawMessage
}

func (e *QueueEntry) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("queue entry: %w", err)
	}
	if len(fields) > 0 {
		_ = json.Unmarshal(fields[0], &e.Number)
	}
	if len(fields) > 1 {
		_ = json.Unmarshal(fields[1], &e.PromptID)
	}
	if len(fields) > 4 {
		if err := json.Unmarshal(fields[4], &e.Outputs); err != nil {
			return fmt.Errorf("queue entry outputs: %w", err)
		}
	}
	return nil
}

// QueueSnapshot is a point-in-time view of the engine queue
type QueueSnapshot struct {
	Running []QueueEntry
	Pending []QueueEntry
}

// CacheHit reports whether nothing is executing. Right after a submission
// this means the engine served the prompt from its cache and no progress
// or preview frames will follow.
func (s *QueueSnapshot) CacheHit() bool {
	return len(s.Running) == 0
}

// ImageCount returns the number of outputs the engine will execute for
// promptID. When the prompt is not found the first running entry is used.
func (s *QueueSnapshot) ImageCount(promptID string) int {
	for _, entries := range [][]QueueEntry{s.Running, s.Pending} {
		for _, e := range entries {
			if e.PromptID == promptID {
				return len(e.Outputs)
			}
		}
	}
	if len(s.Running) > 0 {
		return len(s.Running[0].Outputs)
	}
	return 0
}

// Inspector answers queue and history questions about a submitted job
type Inspector struct {
	client    *Client
	imagePath string
	logger    *slog.Logger
}

// NewInspector creates an inspector whose output URLs point at imagePath
func NewInspector(client *Client, imagePath string, logger *slog.Logger) *Inspector {
	return &Inspector{
		client:    client,
		imagePath: imagePath,
		logger:    logger,
	}
}

// Snapshot fetches the current queue. Nothing is cached between calls.
func (i *Inspector) Snapshot(ctx context.Context) (*QueueSnapshot, error) {
	queue, err := i.client.GetQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("get queue: %w", err)
	}
	return &QueueSnapshot{Running: queue.Running, Pending: queue.Pending}, nil
}

// IsCacheHit reports whether the engine is not executing anything
func (i *Inspector) IsCacheHit(ctx context.Context) (bool, error) {
	snapshot, err := i.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snapshot.CacheHit(), nil
}

// ExpectedImageCount returns the number of outputs queued for promptID
func (i *Inspector) ExpectedImageCount(ctx context.Context, promptID string) (int, error) {
	snapshot, err := i.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snapshot.ImageCount(promptID), nil
}

// ResolveOutputs maps every output node of promptID to proxied image URLs.
// The result depends only on the engine's history, so repeated calls for a
// finished prompt return the same URLs.
func (i *Inspector) ResolveOutputs(ctx context.Context, promptID string) (map[string][]string, error) {
	history, err := i.client.GetHistory(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	outputs := make(map[string][]string)

	entry, ok := history[promptID]
	if !ok {
		i.logger.Warn("prompt not found in history", "prompt_id", promptID)
		return outputs, nil
	}

	for nodeID, output := range entry.Outputs {
		if len(output.Images) == 0 {
			continue
		}
		urls := make([]string, 0, len(output.Images))
		for _, img := range output.Images {
			urls = append(urls, ProxyURL(i.imagePath, img))
		}
		outputs[nodeID] = urls
	}

	return outputs, nil
}

// ProxyURL encodes an output image descriptor as a URL under imagePath
func ProxyURL(imagePath string, img ImageOutput) string {
	params := url.Values{}
	params.Set("filename", img.Filename)
	params.Set("subfolder", img.Subfolder)
	params.Set("type", img.Type)
	return imagePath + "?" + params.Encode()
}
