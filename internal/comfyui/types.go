package comfyui

import "encoding/json"

// PromptRequest is sent to POST /prompt
type PromptRequest struct {
	Prompt   JobGraph `json:"prompt"`
	ClientID string   `json:"client_id"`
}

// PromptResponse is returned from POST /prompt
type PromptResponse struct {
	PromptID   string          `json:"prompt_id"`
	Number     int             `json:"number"`
	NodeErrors json.RawMessage `json:"node_errors,omitempty"`
	Error      *PromptError    `json:"error,omitempty"`
}

// nodeErrors decodes node_errors, which the engine sends as an object keyed
// by node id (or an empty array on some versions).
func (r PromptResponse) nodeErrors() map[string]NodeError {
	var errs map[string]NodeError
	if err := json.Unmarshal(r.NodeErrors, &errs); err != nil {
		return nil
	}
	return errs
}

// PromptError is the top-level error the engine returns for rejected prompts
type PromptError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// NodeError contains validation errors reported for a single node
type NodeError struct {
	Errors []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"errors"`
	ClassType string `json:"class_type"`
}

// QueueResponse is returned from GET /queue
type QueueResponse struct {
	Running []QueueEntry `json:"queue_running"`
	Pending []QueueEntry `json:"queue_pending"`
}

// HistoryResponse is returned from GET /history/{prompt_id}
type HistoryResponse map[string]HistoryEntry

// HistoryEntry contains execution history for a single prompt
type HistoryEntry struct {
	Outputs map[string]NodeOutput `json:"outputs"`
	Status  ExecutionStatus       `json:"status"`
}

// NodeOutput contains output data from a node
type NodeOutput struct {
	Images []ImageOutput `json:"images,omitempty"`
}

// ImageOutput describes an output image
type ImageOutput struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// ExecutionStatus indicates the status of an execution
type ExecutionStatus struct {
	StatusStr string `json:"status_str"`
	Completed bool   `json:"completed"`
}

// WSMessage represents a text WebSocket message from the engine
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StatusData is the data payload for "status" messages
type StatusData struct {
	Status *struct {
		ExecInfo *struct {
			QueueRemaining *int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
	SID string `json:"sid,omitempty"`
}

// ProgressData is the data payload for "progress" messages
type ProgressData struct {
	Value    json.Number `json:"value"`
	Max      json.Number `json:"max"`
	PromptID string      `json:"prompt_id,omitempty"`
	Node     string      `json:"node,omitempty"`
}

// SystemStats is returned from GET /system_stats
type SystemStats struct {
	System struct {
		OS            string `json:"os"`
		PythonVersion string `json:"python_version"`
	} `json:"system"`
	Devices []DeviceInfo `json:"devices"`
}

// DeviceInfo contains information about a compute device
type DeviceInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	VRAMTotal int64  `json:"vram_total"`
	VRAMFree  int64  `json:"vram_free"`
}
