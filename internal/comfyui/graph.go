package comfyui

import (
	"encoding/json"
	"errors"
	"fmt"

	apperrors "comfy-bridge/internal/errors"
)

// JobGraph maps node ids to node definitions. The bridge forwards it to the
// engine untouched.
type JobGraph map[string]json.RawMessage

// ParseJobGraph decodes a client-submitted job graph. Only the envelope is
// checked: the payload must be a non-empty JSON object.
func ParseJobGraph(data []byte) (JobGraph, error) {
	var graph JobGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, apperrors.WithCause(apperrors.ErrInvalidGraph, fmt.Errorf("decode job graph: %w", err))
	}
	if len(graph) == 0 {
		return nil, apperrors.WithCause(apperrors.ErrInvalidGraph, errors.New("job graph has no nodes"))
	}
	return graph, nil
}
