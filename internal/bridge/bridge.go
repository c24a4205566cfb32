package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"comfy-bridge/internal/comfyui"
	apperrors "comfy-bridge/internal/errors"
	"comfy-bridge/internal/journal"
)

const defaultPingInterval = 10 * time.Second

// Submitter posts a job graph to the engine
type Submitter interface {
	Submit(ctx context.Context, graph comfyui.JobGraph, clientID string) (string, error)
}

// Inspector reads the engine queue and resolves finished outputs
type Inspector interface {
	Snapshot(ctx context.Context) (*comfyui.QueueSnapshot, error)
	ResolveOutputs(ctx context.Context, promptID string) (map[string][]string, error)
}

// Upstream is an open engine event stream
type Upstream interface {
	ReadMessage() (isBinary bool, data []byte, err error)
	Ping() error
	Close() error
}

// Dialer opens the engine event stream for a client id
type Dialer interface {
	Dial(ctx context.Context, clientID string) (Upstream, error)
}

// DialFunc adapts a function to Dialer
type DialFunc func(ctx context.Context, clientID string) (Upstream, error)

func (f DialFunc) Dial(ctx context.Context, clientID string) (Upstream, error) {
	return f(ctx, clientID)
}

// Journal records job lifecycle for auditing
type Journal interface {
	Start(job journal.Job) error
	Finish(promptID string, outcome journal.Outcome) error
}

// Options wires a bridge to its collaborators. Journal may be nil.
type Options struct {
	Submitter    Submitter
	Inspector    Inspector
	Dialer       Dialer
	Notifier     Notifier
	Journal      Journal
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Bridge runs exactly one job: it owns one client identity, at most one
// upstream connection and the job's state. Methods are not safe for
// concurrent use; State may be read once Run has returned.
type Bridge struct {
	submitter    Submitter
	inspector    Inspector
	dialer       Dialer
	notifier     Notifier
	journal      Journal
	pingInterval time.Duration
	logger       *slog.Logger

	clientID string
	promptID string
	state    State
	started  bool
}

type upstreamMessage struct {
	frame comfyui.Frame
	err   error
}

// New creates a bridge with a freshly generated client id
func New(opts Options) *Bridge {
	clientID := uuid.New().String()

	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		submitter:    opts.Submitter,
		inspector:    opts.Inspector,
		dialer:       opts.Dialer,
		notifier:     opts.Notifier,
		journal:      opts.Journal,
		pingInterval: pingInterval,
		logger:       logger.With("client_id", clientID),
		clientID:     clientID,
		state:        StateSubmitting,
	}
}

// ClientID returns the identifier the engine knows this bridge by
func (b *Bridge) ClientID() string {
	return b.clientID
}

// PromptID returns the engine's job id, empty until submission succeeds
func (b *Bridge) PromptID() string {
	return b.promptID
}

// State returns the current lifecycle state
func (b *Bridge) State() State {
	return b.state
}

// Run drives the job to a terminal state, emitting events along the way.
// It returns nil when the job completed and the failure otherwise.
func (b *Bridge) Run(ctx context.Context, graph comfyui.JobGraph) error {
	if b.started {
		return errors.New("bridge already ran")
	}
	b.started = true

	promptID, err := b.submitter.Submit(ctx, graph, b.clientID)
	if err != nil {
		return b.fail(err)
	}
	b.promptID = promptID
	b.logger = b.logger.With("prompt_id", promptID)
	b.logger.Info("job submitted", "nodes", len(graph))
	b.recordStart()

	// Must happen before the stream opens: a cached prompt never produces
	// progress or preview frames.
	snapshot, err := b.inspector.Snapshot(ctx)
	if err != nil {
		return b.fail(err)
	}

	if snapshot.CacheHit() {
		b.transition(StateCacheHit)
		return b.resolveCached(ctx)
	}

	b.transition(StateQueued)
	b.emit(TotalImagesEvent(snapshot.ImageCount(promptID)))

	upstream, err := b.dialer.Dial(ctx, b.clientID)
	if err != nil {
		return b.fail(err)
	}
	b.transition(StateStreaming)

	return b.stream(ctx, upstream)
}

func (b *Bridge) resolveCached(ctx context.Context) error {
	b.transition(StateResolving)

	outputs, err := b.inspector.ResolveOutputs(ctx, b.promptID)
	if err != nil {
		return b.fail(err)
	}

	count := 0
	for _, urls := range outputs {
		count += len(urls)
	}

	b.logger.Debug("serving cached result", "images", count)
	b.emit(TotalImagesEvent(count))
	return b.complete(outputs, true)
}

func (b *Bridge) stream(ctx context.Context, upstream Upstream) error {
	inbound := make(chan upstreamMessage)
	done := make(chan struct{})
	defer close(done)

	go b.readUpstream(upstream, inbound, done)

	pingTicker := time.NewTicker(b.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			upstream.Close()
			return b.fail(apperrors.WithCause(apperrors.ErrUnknownTransport, fmt.Errorf("bridge cancelled: %w", ctx.Err())))

		case <-pingTicker.C:
			if err := upstream.Ping(); err != nil {
				b.logger.Debug("upstream ping failed", "error", err)
			}

		case msg := <-inbound:
			if msg.err != nil {
				if b.state == StateDraining || errors.Is(msg.err, comfyui.ErrStreamClosed) {
					if b.state == StateStreaming {
						b.logger.Debug("upstream closed by engine")
						b.transition(StateDraining)
					}
					return b.drain(ctx)
				}
				upstream.Close()
				return b.fail(apperrors.WithCause(apperrors.ErrUnknownTransport, msg.err))
			}

			if b.state == StateDraining {
				continue
			}
			b.handleFrame(upstream, msg.frame)
		}
	}
}

// readUpstream decodes frames in arrival order and hands them to the state
// machine. Frames that fail to decode are dropped here.
func (b *Bridge) readUpstream(upstream Upstream, inbound chan<- upstreamMessage, done <-chan struct{}) {
	for {
		isBinary, data, err := upstream.ReadMessage()
		if err != nil {
			select {
			case inbound <- upstreamMessage{err: err}:
			case <-done:
			}
			return
		}

		frame, err := comfyui.ClassifyFrame(data, isBinary)
		if err != nil {
			b.logger.Debug("dropping upstream frame", "error", err, "binary", isBinary, "size", len(data))
			continue
		}

		select {
		case inbound <- upstreamMessage{frame: frame}:
		case <-done:
			return
		}
	}
}

func (b *Bridge) handleFrame(upstream Upstream, frame comfyui.Frame) {
	switch f := frame.(type) {
	case comfyui.ProgressFrame:
		b.emit(ProgressEvent(f.Value, f.Max))

	case comfyui.ImageFrame:
		if !f.KnownTag() {
			b.logger.Debug("unrecognized preview image tag, assuming jpeg", "tag", f.Tag)
		}
		b.emit(PreviewEvent(f.Base64(), f.MimeType))

	case comfyui.StatusFrame:
		if f.QueueRemaining != 0 {
			return
		}
		b.logger.Debug("engine queue empty, closing upstream")
		b.transition(StateDraining)
		if err := upstream.Close(); err != nil {
			b.logger.Debug("close upstream", "error", err)
		}
	}
}

func (b *Bridge) drain(ctx context.Context) error {
	outputs, err := b.inspector.ResolveOutputs(ctx, b.promptID)
	if err != nil {
		return b.fail(err)
	}
	return b.complete(outputs, false)
}

func (b *Bridge) complete(outputs map[string][]string, cacheHit bool) error {
	if b.state.Terminal() {
		return nil
	}

	b.emit(CompletedEvent(outputs))
	b.transition(StateCompleted)
	b.logger.Info("job completed", "cache_hit", cacheHit, "output_nodes", len(outputs))

	b.recordFinish(journal.Outcome{
		Status:   journal.StatusCompleted,
		CacheHit: cacheHit,
		Outputs:  outputs,
	})
	return nil
}

// fail moves the job to StateErrored and emits its single error event
func (b *Bridge) fail(err error) error {
	if b.state.Terminal() {
		return err
	}

	kind := apperrors.KindOf(err)
	if kind == apperrors.KindEngineUnreachable {
		b.logger.Warn("engine unreachable", "state", b.state.String(), "error", err)
	} else {
		b.logger.Error("job failed", "state", b.state.String(), "kind", kind, "error", err)
	}

	b.emit(ErrorEvent(apperrors.GetUserMessage(err)))
	b.transition(StateErrored)

	b.recordFinish(journal.Outcome{
		Status:    journal.StatusErrored,
		ErrorKind: string(kind),
	})
	return err
}

func (b *Bridge) emit(event Event) {
	if b.state.Terminal() {
		return
	}
	b.notifier.Emit(event)
}

func (b *Bridge) transition(next State) {
	if !b.state.CanTransition(next) {
		b.logger.Warn("ignoring invalid state transition", "from", b.state.String(), "to", next.String())
		return
	}
	b.logger.Debug("state transition", "from", b.state.String(), "to", next.String())
	b.state = next
}

func (b *Bridge) recordStart() {
	if b.journal == nil {
		return
	}
	err := b.journal.Start(journal.Job{
		PromptID:  b.promptID,
		ClientID:  b.clientID,
		Status:    journal.StatusRunning,
		StartedAt: time.Now(),
	})
	if err != nil {
		b.logger.Error("failed to record job start", "error", err)
	}
}

func (b *Bridge) recordFinish(outcome journal.Outcome) {
	if b.journal == nil || b.promptID == "" {
		return
	}
	outcome.FinishedAt = time.Now()
	if err := b.journal.Finish(b.promptID, outcome); err != nil {
		b.logger.Error("failed to record job outcome", "error", err)
	}
}
