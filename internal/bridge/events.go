package bridge

import "encoding/json"

// EventType is the "type" discriminator of client-facing events
type EventType string

const (
	EventTotalImages EventType = "total_images"
	EventProgress    EventType = "progress"
	EventPreview     EventType = "preview"
	EventCompleted   EventType = "completed"
	EventError       EventType = "error"
)

// Event is a normalized client-facing message. Error events carry Message
// and no Data; every other event carries Data.
type Event struct {
	Type    EventType `json:"type"`
	Data    any       `json:"data,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ProgressData mirrors the engine's progress numbers verbatim
type ProgressData struct {
	Value json.Number `json:"value"`
	Max   json.Number `json:"max"`
}

// PreviewData carries one base64 preview image
type PreviewData struct {
	Image    string `json:"image"`
	MimeType string `json:"mimetype"`
}

func TotalImagesEvent(count int) Event {
	return Event{Type: EventTotalImages, Data: count}
}

func ProgressEvent(value, maxValue json.Number) Event {
	return Event{Type: EventProgress, Data: ProgressData{Value: value, Max: maxValue}}
}

func PreviewEvent(imageBase64, mimeType string) Event {
	return Event{Type: EventPreview, Data: PreviewData{Image: imageBase64, MimeType: mimeType}}
}

// CompletedEvent maps node ids to proxied output URLs. A nil map is sent as {}.
func CompletedEvent(outputs map[string][]string) Event {
	if outputs == nil {
		outputs = map[string][]string{}
	}
	return Event{Type: EventCompleted, Data: outputs}
}

func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// Terminal reports whether the event ends a job's stream
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventError
}
