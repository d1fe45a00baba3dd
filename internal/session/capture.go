package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type CaptureState string

const (
	CaptureIdle                 CaptureState = "idle"
	CaptureRequestingPermission CaptureState = "requesting_permission"
	CapturePreviewing           CaptureState = "previewing"
	CaptureRecording            CaptureState = "recording"
	CapturePaused               CaptureState = "paused"
	CaptureStopped              CaptureState = "stopped"
	CaptureError                CaptureState = "error"
)

// captureTransitions lists the legal moves. Close may return to idle from anywhere.
var captureTransitions = map[CaptureState][]CaptureState{
	CaptureIdle:                 {CaptureRequestingPermission},
	CaptureRequestingPermission: {CapturePreviewing, CaptureError},
	CapturePreviewing:           {CaptureRecording, CaptureRequestingPermission, CaptureError},
	CaptureRecording:            {CapturePaused, CaptureStopped, CaptureError},
	CapturePaused:               {CaptureRecording, CaptureStopped, CaptureError},
	CaptureStopped:              {CaptureRequestingPermission},
	CaptureError:                {CaptureRequestingPermission},
}

func canMove(from, to CaptureState) bool {
	if to == CaptureIdle {
		return true
	}
	for _, s := range captureTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type DeviceKind string

const (
	DeviceVideoInput DeviceKind = "videoinput"
	DeviceAudioInput DeviceKind = "audioinput"
)

type Device struct {
	ID    string     `json:"id" validate:"required"`
	Kind  DeviceKind `json:"kind" validate:"required,oneof=videoinput audioinput"`
	Label string     `json:"label"`
}

// MediaStream is a live camera/microphone handle.
type MediaStream interface {
	Stop()
	CanPause() bool
}

// DeviceProvider is the capture platform: it lists devices and opens streams.
type DeviceProvider interface {
	Enumerate(ctx context.Context) ([]Device, error)
	Acquire(ctx context.Context, videoID, audioID string) (MediaStream, error)
}

// Artifact is a finished recording. Callers must not modify Data.
type Artifact struct {
	Data     []byte
	MimeType string
	Duration time.Duration
	Size     int64
}

type CaptureSnapshot struct {
	State          CaptureState `json:"state"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	MaxSeconds     int          `json:"max_seconds"`
	BufferedBytes  int64        `json:"buffered_bytes"`
	HasArtifact    bool         `json:"has_artifact"`
	CanPause       bool         `json:"can_pause"`
	Error          string       `json:"error,omitempty"`
}

const recordingMimeType = "video/webm"

// CaptureController owns one recording session: devices, stream, buffered
// chunks and the elapsed counter. The stream is released on stop, discard,
// failure and Close.
type CaptureController struct {
	mu       sync.Mutex
	devices  DeviceProvider
	clock    Clock
	maxDur   time.Duration
	maxBytes int64
	state    CaptureState
	stream   MediaStream
	videoID  string
	audioID  string
	chunks   bytes.Buffer
	elapsed  time.Duration
	ticker   Stopper
	artifact *Artifact
	lastErr  error
}

// NewCaptureController caps a recording at maxDuration and its buffer at
// maxBytes. A non-positive maxBytes uses DefaultMaxUploadBytes.
func NewCaptureController(devices DeviceProvider, clock Clock, maxDuration time.Duration, maxBytes int64) *CaptureController {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &CaptureController{
		devices:  devices,
		clock:    clock,
		maxDur:   maxDuration,
		maxBytes: maxBytes,
		state:    CaptureIdle,
	}
}

func (c *CaptureController) move(to CaptureState) error {
	if !canMove(c.state, to) {
		return ErrInvalidTransition
	}
	c.state = to
	return nil
}

// EnumerateDevices never fails: unsupported enumeration or denied
// permission yields an empty list so the caller can offer a retry.
func (c *CaptureController) EnumerateDevices(ctx context.Context) []Device {
	devs, err := c.devices.Enumerate(ctx)
	if err != nil {
		return []Device{}
	}
	return devs
}

// AcquireStream opens the chosen devices and moves to previewing. Empty IDs
// mean the platform default. Failure leaves the controller in error with a
// DeviceError.
func (c *CaptureController) AcquireStream(ctx context.Context, videoID, audioID string) error {
	c.mu.Lock()
	if err := c.move(CaptureRequestingPermission); err != nil {
		c.mu.Unlock()
		return err
	}
	c.releaseStream()
	c.artifact = nil
	c.videoID, c.audioID = videoID, audioID
	c.mu.Unlock()

	stream, err := c.devices.Acquire(ctx, videoID, audioID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureRequestingPermission {
		// Closed while waiting on the platform.
		if stream != nil {
			stream.Stop()
		}
		return ErrInvalidTransition
	}
	if err != nil {
		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			devErr = &DeviceError{Reason: "could not open capture devices", Err: err}
		}
		c.lastErr = devErr
		c.state = CaptureError
		return devErr
	}

	c.stream = stream
	c.lastErr = nil
	c.state = CapturePreviewing
	return nil
}

// StartRecording is only valid from previewing.
func (c *CaptureController) StartRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CapturePreviewing {
		return ErrInvalidTransition
	}
	c.state = CaptureRecording
	c.chunks.Reset()
	c.elapsed = 0
	c.artifact = nil
	c.startTicker()
	return nil
}

func (c *CaptureController) startTicker() {
	c.ticker = c.clock.Every(time.Second, c.tick)
}

func (c *CaptureController) stopTicker() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *CaptureController) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureRecording {
		return
	}
	c.elapsed += time.Second
	if c.maxDur > 0 && c.elapsed >= c.maxDur {
		c.finish()
	}
}

func (c *CaptureController) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureRecording || c.stream == nil || !c.stream.CanPause() {
		return ErrInvalidTransition
	}
	c.stopTicker()
	return c.move(CapturePaused)
}

func (c *CaptureController) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CapturePaused {
		return ErrInvalidTransition
	}
	c.startTicker()
	return c.move(CaptureRecording)
}

// AppendChunk buffers encoded media delivered by the recorder. A chunk
// that would take the buffer past the upload limit is refused and the
// recording keeps what it already has.
func (c *CaptureController) AppendChunk(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureRecording {
		return ErrInvalidTransition
	}
	if size := int64(c.chunks.Len()) + int64(len(data)); size > c.maxBytes {
		return &UploadError{
			Kind: UploadTooLarge,
			Err:  fmt.Errorf("recording would reach %d bytes, limit is %d", size, c.maxBytes),
		}
	}
	c.chunks.Write(data)
	return nil
}

// Fail records a mid-session capture failure and releases the stream.
func (c *CaptureController) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !canMove(c.state, CaptureError) {
		return
	}
	c.stopTicker()
	c.releaseStream()
	c.chunks.Reset()
	c.lastErr = &RecordingError{Reason: reason}
	c.state = CaptureError
}

// StopRecording finalizes the buffered chunks. Outside recording or paused
// it does nothing and returns nil.
func (c *CaptureController) StopRecording() *Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureRecording && c.state != CapturePaused {
		return nil
	}
	return c.finish()
}

func (c *CaptureController) finish() *Artifact {
	c.stopTicker()
	c.releaseStream()

	data := make([]byte, c.chunks.Len())
	copy(data, c.chunks.Bytes())
	c.chunks.Reset()

	c.artifact = &Artifact{
		Data:     data,
		MimeType: recordingMimeType,
		Duration: c.elapsed,
		Size:     int64(len(data)),
	}
	c.state = CaptureStopped
	return c.artifact
}

// Artifact returns the finished recording while stopped.
func (c *CaptureController) Artifact() *Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != CaptureStopped {
		return nil
	}
	return c.artifact
}

// DiscardAndRestart drops the finished recording and reopens the same
// devices, returning to previewing.
func (c *CaptureController) DiscardAndRestart(ctx context.Context) error {
	c.mu.Lock()
	if c.state != CaptureStopped {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.artifact = nil
	c.elapsed = 0
	videoID, audioID := c.videoID, c.audioID
	c.mu.Unlock()

	return c.AcquireStream(ctx, videoID, audioID)
}

// Close releases every resource and returns to idle.
func (c *CaptureController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTicker()
	c.releaseStream()
	c.chunks.Reset()
	c.artifact = nil
	c.elapsed = 0
	c.lastErr = nil
	c.state = CaptureIdle
}

func (c *CaptureController) releaseStream() {
	if c.stream != nil {
		c.stream.Stop()
		c.stream = nil
	}
}

func (c *CaptureController) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CaptureController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *CaptureController) Snapshot() CaptureSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := CaptureSnapshot{
		State:          c.state,
		ElapsedSeconds: int(c.elapsed / time.Second),
		MaxSeconds:     int(c.maxDur / time.Second),
		BufferedBytes:  int64(c.chunks.Len()),
		HasArtifact:    c.state == CaptureStopped && c.artifact != nil,
		CanPause:       c.stream != nil && c.stream.CanPause(),
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Error()
	}
	return snap
}
