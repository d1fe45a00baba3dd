package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevices = []Device{
	{ID: "cam-1", Kind: DeviceVideoInput, Label: "Front camera"},
	{ID: "mic-1", Kind: DeviceAudioInput, Label: "Built-in mic"},
}

func newTestCapture(t *testing.T) (*CaptureController, *RelayDevices, *ManualClock) {
	t.Helper()
	clock := newTestClock()
	devices := NewRelayDevices()
	devices.Report(testDevices, true, true)
	return NewCaptureController(devices, clock, 5*time.Minute, 16), devices, clock
}

func startRecording(t *testing.T, c *CaptureController) {
	t.Helper()
	require.NoError(t, c.AcquireStream(context.Background(), "cam-1", "mic-1"))
	require.Equal(t, CapturePreviewing, c.State())
	require.NoError(t, c.StartRecording())
}

func TestCapture_StopWhenNotRecordingIsNoop(t *testing.T) {
	c, _, _ := newTestCapture(t)

	assert.Nil(t, c.StopRecording())
	assert.Equal(t, CaptureIdle, c.State())

	require.NoError(t, c.AcquireStream(context.Background(), "", ""))
	assert.Nil(t, c.StopRecording())
	assert.Equal(t, CapturePreviewing, c.State())
}

func TestCapture_StopReleasesStream(t *testing.T) {
	c, devices, clock := newTestCapture(t)
	startRecording(t, c)
	assert.Equal(t, 1, devices.OpenStreams())

	require.NoError(t, c.AppendChunk([]byte("abc")))
	clock.Advance(3 * time.Second)
	require.NoError(t, c.AppendChunk([]byte("def")))

	artifact := c.StopRecording()
	require.NotNil(t, artifact)
	assert.Equal(t, CaptureStopped, c.State())
	assert.Equal(t, []byte("abcdef"), artifact.Data)
	assert.Equal(t, int64(6), artifact.Size)
	assert.Equal(t, 3*time.Second, artifact.Duration)
	assert.Equal(t, "video/webm", artifact.MimeType)
	assert.Equal(t, 0, devices.OpenStreams())

	assert.ErrorIs(t, c.AppendChunk([]byte("late")), ErrInvalidTransition)
	assert.Same(t, artifact, c.Artifact())
}

func TestCapture_AutoStopAtCap(t *testing.T) {
	c, devices, clock := newTestCapture(t)
	startRecording(t, c)

	clock.Advance(5*time.Minute - time.Second)
	assert.Equal(t, CaptureRecording, c.State())

	clock.Advance(time.Second)
	assert.Equal(t, CaptureStopped, c.State())
	require.NotNil(t, c.Artifact())
	assert.Equal(t, 5*time.Minute, c.Artifact().Duration)
	assert.Equal(t, 0, devices.OpenStreams())
	assert.Equal(t, 0, clock.Pending())
}

func TestCapture_PauseResume(t *testing.T) {
	c, _, clock := newTestCapture(t)
	startRecording(t, c)

	clock.Advance(2 * time.Second)
	require.NoError(t, c.Pause())
	assert.Equal(t, CapturePaused, c.State())
	assert.ErrorIs(t, c.AppendChunk([]byte("x")), ErrInvalidTransition)

	clock.Advance(time.Minute)
	assert.Equal(t, 2, c.Snapshot().ElapsedSeconds)

	require.NoError(t, c.Resume())
	clock.Advance(time.Second)
	assert.Equal(t, 3, c.Snapshot().ElapsedSeconds)

	artifact := c.StopRecording()
	require.NotNil(t, artifact)
	assert.Equal(t, 3*time.Second, artifact.Duration)
}

func TestCapture_PauseUnsupported(t *testing.T) {
	c, devices, _ := newTestCapture(t)
	devices.Report(testDevices, true, false)
	startRecording(t, c)

	assert.ErrorIs(t, c.Pause(), ErrInvalidTransition)
	assert.Equal(t, CaptureRecording, c.State())
}

func TestCapture_StartOnlyFromPreviewing(t *testing.T) {
	c, _, _ := newTestCapture(t)
	assert.ErrorIs(t, c.StartRecording(), ErrInvalidTransition)

	startRecording(t, c)
	assert.ErrorIs(t, c.StartRecording(), ErrInvalidTransition)
}

func TestCapture_PermissionDenied(t *testing.T) {
	c, devices, _ := newTestCapture(t)
	devices.Report(testDevices, false, true)

	err := c.AcquireStream(context.Background(), "", "")
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "permission denied", devErr.Reason)
	assert.Equal(t, CaptureError, c.State())
	assert.Contains(t, c.Snapshot().Error, "permission denied")

	assert.Empty(t, c.EnumerateDevices(context.Background()))

	devices.Report(testDevices, true, true)
	require.NoError(t, c.AcquireStream(context.Background(), "", ""))
	assert.Equal(t, CapturePreviewing, c.State())
	assert.Empty(t, c.Snapshot().Error)
}

func TestCapture_UnknownDevice(t *testing.T) {
	c, _, _ := newTestCapture(t)

	err := c.AcquireStream(context.Background(), "cam-missing", "")
	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "no camera available", devErr.Reason)
}

func TestCapture_EnumerateSoftFails(t *testing.T) {
	c := NewCaptureController(NewRelayDevices(), newTestClock(), time.Minute, 0)
	devs := c.EnumerateDevices(context.Background())
	assert.NotNil(t, devs)
	assert.Empty(t, devs)
}

func TestCapture_DiscardAndRestart(t *testing.T) {
	c, devices, _ := newTestCapture(t)

	assert.ErrorIs(t, c.DiscardAndRestart(context.Background()), ErrInvalidTransition)

	startRecording(t, c)
	require.NoError(t, c.AppendChunk([]byte("take-1")))
	require.NotNil(t, c.StopRecording())

	require.NoError(t, c.DiscardAndRestart(context.Background()))
	assert.Equal(t, CapturePreviewing, c.State())
	assert.Nil(t, c.Artifact())
	assert.Equal(t, 1, devices.OpenStreams())

	require.NoError(t, c.StartRecording())
	require.NoError(t, c.AppendChunk([]byte("take-2")))
	artifact := c.StopRecording()
	require.NotNil(t, artifact)
	assert.Equal(t, []byte("take-2"), artifact.Data)
}

func TestCapture_FailReleasesStream(t *testing.T) {
	c, devices, clock := newTestCapture(t)
	startRecording(t, c)

	c.Fail("encoder crashed")
	assert.Equal(t, CaptureError, c.State())
	assert.Equal(t, 0, devices.OpenStreams())
	assert.Equal(t, 0, clock.Pending())

	var recErr *RecordingError
	require.True(t, errors.As(c.Err(), &recErr))
	assert.Equal(t, "encoder crashed", recErr.Reason)
}

func TestCapture_CloseReleasesEverything(t *testing.T) {
	c, devices, clock := newTestCapture(t)
	startRecording(t, c)
	require.NoError(t, c.AppendChunk([]byte("data")))

	c.Close()
	assert.Equal(t, CaptureIdle, c.State())
	assert.Equal(t, 0, devices.OpenStreams())
	assert.Equal(t, 0, clock.Pending())
	assert.Equal(t, int64(0), c.Snapshot().BufferedBytes)
}

func TestCapture_BufferCappedAtUploadLimit(t *testing.T) {
	c, _, _ := newTestCapture(t)
	startRecording(t, c)

	require.NoError(t, c.AppendChunk([]byte("0123456789")))
	err := c.AppendChunk([]byte("abcdefg"))
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, UploadTooLarge, uerr.Kind)

	// The refused chunk is dropped; the recording goes on with what it had.
	assert.Equal(t, CaptureRecording, c.State())
	assert.Equal(t, int64(10), c.Snapshot().BufferedBytes)
	require.NoError(t, c.AppendChunk([]byte("abcdef")))

	artifact := c.StopRecording()
	require.NotNil(t, artifact)
	assert.Equal(t, int64(16), artifact.Size)
}
