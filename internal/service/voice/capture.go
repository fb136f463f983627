package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/euonia-ta/backend/internal/logging"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
)

// DefaultSettleDelay bounds how long finalization waits for late recognizer results.
const DefaultSettleDelay = 800 * time.Millisecond

// MicrophoneDeniedNotice is shown to the user when capture cannot start.
const MicrophoneDeniedNotice = "Could not access microphone. Please allow permissions."

var (
	ErrMicrophoneDenied = errors.New("microphone access denied")
	ErrNotRecording     = errors.New("voice capture is not recording")
	ErrAlreadyActive    = errors.New("voice capture already active")
)

// State is the capture lifecycle: Idle → Recording → Finalizing → Idle.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// Stream is an acquired microphone. Close releases the device.
type Stream interface {
	Close() error
}

// MediaSource grants access to the microphone.
type MediaSource interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Listener receives draft text and state changes. Calls happen outside the
// capture lock, so a listener may call back into the Capture.
type Listener interface {
	Draft(text string)
	State(state State)
}

// Capture records one utterance at a time and reconciles its live transcript.
type Capture struct {
	settleDelay time.Duration
	listener    Listener
	logger      *zap.Logger

	mu         sync.Mutex
	state      State
	stream     Stream
	mimeType   string
	audio      bytes.Buffer
	recognizer Recognizer
}

// NewCapture creates an idle capture. A negative settle delay falls back to the default.
func NewCapture(settleDelay time.Duration, listener Listener, logger *zap.Logger) *Capture {
	if settleDelay < 0 {
		settleDelay = DefaultSettleDelay
	}
	if listener == nil {
		listener = nopListener{}
	}
	return &Capture{
		settleDelay: settleDelay,
		listener:    listener,
		logger:      logging.OrNop(logger).Named("voice"),
		state:       StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the microphone and begins a recording. On ErrMicrophoneDenied
// the capture stays idle.
func (c *Capture) Start(ctx context.Context, source MediaSource, caps speech.Capabilities) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.audio.Reset()
	c.recognizer = nil
	c.mu.Unlock()

	c.listener.Draft("")

	stream, err := source.Acquire(ctx)
	if err != nil {
		c.logger.Warn("microphone unavailable", zap.Error(err))
		if errors.Is(err, ErrMicrophoneDenied) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMicrophoneDenied, err)
	}

	mimeType := NegotiateMIMEType(caps)
	recognizer := NewRecognizer(caps)

	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		_ = stream.Close()
		return ErrAlreadyActive
	}
	c.stream = stream
	c.mimeType = mimeType
	c.recognizer = recognizer
	c.state = StateRecording
	c.mu.Unlock()

	c.logger.Info("recording started",
		zap.String("mimeType", mimeType),
		zap.Bool("recognition", recognizer.Live()),
	)
	c.listener.State(StateRecording)
	return nil
}

// AppendAudio buffers one recorded chunk. Empty chunks are ignored.
func (c *Capture) AppendAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return ErrNotRecording
	}
	if len(chunk) == 0 {
		return nil
	}
	c.audio.Write(chunk)
	return nil
}

// Recognize applies a recognizer event. Events keep arriving while the
// recording is finalizing; they are dropped once the capture is idle.
func (c *Capture) Recognize(event speech.RecognitionEvent) {
	c.mu.Lock()
	recognizer := c.recognizer
	active := c.state == StateRecording || c.state == StateFinalizing
	c.mu.Unlock()

	if !active || recognizer == nil || !recognizer.Live() {
		return
	}
	c.listener.Draft(recognizer.Feed(event))
}

// EndRecognition signals that the recognizer has delivered its last result.
func (c *Capture) EndRecognition() {
	c.mu.Lock()
	recognizer := c.recognizer
	c.mu.Unlock()

	if recognizer != nil {
		recognizer.End()
	}
}

// Stop finalizes the recording. The audio is encoded while the transcript
// settles; settling ends at the recognizer's end signal or after the settle
// delay, whichever comes first. The stream is released on every path.
// recorderMIME is the type the recorder reported, if any.
func (c *Capture) Stop(ctx context.Context, recorderMIME string) (speech.CaptureResult, error) {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return speech.CaptureResult{}, ErrNotRecording
	}
	c.state = StateFinalizing
	stream := c.stream
	recognizer := c.recognizer
	negotiated := c.mimeType
	blob := append([]byte(nil), c.audio.Bytes()...)
	c.mu.Unlock()

	c.listener.State(StateFinalizing)

	defer func() {
		if stream != nil {
			if err := stream.Close(); err != nil {
				c.logger.Warn("release microphone", zap.Error(err))
			}
		}
		c.mu.Lock()
		c.state = StateIdle
		c.stream = nil
		c.recognizer = nil
		c.audio.Reset()
		c.mu.Unlock()
		c.listener.State(StateIdle)
	}()

	var encoded string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		encoded = base64.StdEncoding.EncodeToString(blob)
		return nil
	})
	g.Go(func() error {
		return c.settle(gctx, recognizer)
	})
	if err := g.Wait(); err != nil {
		return speech.CaptureResult{}, fmt.Errorf("finalize recording: %w", err)
	}

	result := speech.CaptureResult{
		AudioBase64: encoded,
		MIMEType:    ResolveMIMEType(recorderMIME, negotiated),
	}
	if recognizer != nil {
		result.Transcript = recognizer.Text()
	}

	c.logger.Info("recording captured",
		zap.Int("bytes", len(blob)),
		zap.String("mimeType", result.MIMEType),
		zap.Int("transcriptLength", len(result.Transcript)),
	)
	return result, nil
}

// Abort drops an active recording without producing a result.
func (c *Capture) Abort() {
	c.mu.Lock()
	if c.state != StateRecording {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	recognizer := c.recognizer
	c.state = StateIdle
	c.stream = nil
	c.recognizer = nil
	c.audio.Reset()
	c.mu.Unlock()

	if recognizer != nil {
		recognizer.End()
	}
	if stream != nil {
		_ = stream.Close()
	}
	c.listener.State(StateIdle)
}

func (c *Capture) settle(ctx context.Context, recognizer Recognizer) error {
	if recognizer == nil || !recognizer.Live() || c.settleDelay == 0 {
		return nil
	}

	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()

	select {
	case <-recognizer.Ended():
	case <-timer.C:
		c.logger.Debug("recognizer did not end before settle delay", zap.Duration("delay", c.settleDelay))
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

type nopListener struct{}

func (nopListener) Draft(string) {}
func (nopListener) State(State)  {}
