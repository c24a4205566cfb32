package comfyui

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame marks a frame that could not be decoded
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnsupportedFrame marks a well-formed frame of a type the bridge ignores
	ErrUnsupportedFrame = errors.New("unsupported frame type")
)

// Binary frame header: a big-endian uint32 image tag followed by four
// reserved bytes.
const imageHeaderSize = 8

const (
	TagJPEG uint32 = 1
	TagPNG  uint32 = 2
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

// Frame is a decoded upstream frame: ImageFrame, StatusFrame or ProgressFrame
type Frame interface {
	frame()
}

// ImageFrame is a preview image pushed as a binary frame
type ImageFrame struct {
	Tag      uint32
	MimeType string
	Payload  []byte
}

// StatusFrame reports how many prompts remain in the engine queue
type StatusFrame struct {
	QueueRemaining int
}

// ProgressFrame reports sampler progress for the executing node
type ProgressFrame struct {
	Value json.Number
	Max   json.Number
}

func (ImageFrame) frame()    {}
func (StatusFrame) frame()   {}
func (ProgressFrame) frame() {}

// KnownTag reports whether the header carried a recognized image tag.
// Unrecognized tags are decoded as JPEG.
func (f ImageFrame) KnownTag() bool {
	return f.Tag == TagJPEG || f.Tag == TagPNG
}

// Base64 returns the payload, without header, in standard base64
func (f ImageFrame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Payload)
}

// ClassifyFrame decodes a raw upstream frame. The transport tells us whether
// the frame was binary; the protocol carries no other framing hint.
func ClassifyFrame(data []byte, isBinary bool) (Frame, error) {
	if isBinary {
		return decodeImageFrame(data)
	}
	return decodeControlFrame(data)
}

func decodeImageFrame(data []byte) (Frame, error) {
	if len(data) < imageHeaderSize {
		return nil, fmt.Errorf("%w: binary frame of %d bytes is shorter than its header", ErrMalformedFrame, len(data))
	}

	tag := binary.BigEndian.Uint32(data[:4])
	mime := MimeJPEG
	if tag == TagPNG {
		mime = MimePNG
	}

	return ImageFrame{
		Tag:      tag,
		MimeType: mime,
		Payload:  data[imageHeaderSize:],
	}, nil
}

func decodeControlFrame(data []byte) (Frame, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch msg.Type {
	case "status":
		var status StatusData
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			return nil, fmt.Errorf("%w: status: %v", ErrMalformedFrame, err)
		}
		if status.Status == nil || status.Status.ExecInfo == nil || status.Status.ExecInfo.QueueRemaining == nil {
			return nil, fmt.Errorf("%w: status without exec_info.queue_remaining", ErrMalformedFrame)
		}
		return StatusFrame{QueueRemaining: *status.Status.ExecInfo.QueueRemaining}, nil

	case "progress":
		var progress ProgressData
		if err := json.Unmarshal(msg.Data, &progress); err != nil {
			return nil, fmt.Errorf("%w: progress: %v", ErrMalformedFrame, err)
		}
		if progress.Value == "" || progress.Max == "" {
			return nil, fmt.Errorf("%w: progress without value or max", ErrMalformedFrame)
		}
		return ProgressFrame{Value: progress.Value, Max: progress.Max}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFrame, msg.Type)
	}
}
