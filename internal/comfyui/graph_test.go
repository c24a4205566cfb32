package comfyui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "comfy-bridge/internal/errors"
)

func TestParseJobGraph(t *testing.T) {
	graph, err := ParseJobGraph([]byte(`{"3":{"class_type":"KSampler","inputs":{"seed":1,"model":["4",0]}},"9":{"class_type":"SaveImage"}}`))
	require.NoError(t, err)
	require.Len(t, graph, 2)
	require.JSONEq(t, `{"class_type":"SaveImage"}`, string(graph["9"]))
}

func TestParseJobGraphRejectsNonObjects(t *testing.T) {
	for _, input := range []string{`[]`, `"graph"`, `{}`, `{"3":`, ``, `null`} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseJobGraph([]byte(input))
			require.Error(t, err)
			require.True(t, errors.Is(err, apperrors.ErrInvalidGraph))
		})
	}
}
