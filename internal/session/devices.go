package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// RelayDevices is the server-side DeviceProvider. The browser enumerates
// its own camera and microphone and reports them with the permission
// outcome; acquiring hands back a relay stream that tracks release.
type RelayDevices struct {
	mu       sync.Mutex
	devices  []Device
	granted  bool
	reported bool
	pausable bool
	streams  []*RelayStream
}

func NewRelayDevices() *RelayDevices {
	return &RelayDevices{pausable: true}
}

// Report replaces the known device list. canPause says whether the
// client's recorder supports pausing.
func (r *RelayDevices) Report(devices []Device, permissionGranted, canPause bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = append([]Device(nil), devices...)
	r.granted = permissionGranted
	r.pausable = canPause
	r.reported = true
}

func (r *RelayDevices) Enumerate(ctx context.Context) ([]Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.reported {
		return nil, &DeviceError{Reason: "client has not reported any devices"}
	}
	if !r.granted {
		return nil, &DeviceError{Reason: "permission denied"}
	}
	return append([]Device(nil), r.devices...), nil
}

func (r *RelayDevices) Acquire(ctx context.Context, videoID, audioID string) (MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.granted {
		return nil, &DeviceError{Reason: "permission denied"}
	}
	if !r.has(DeviceVideoInput, videoID) {
		return nil, &DeviceError{Reason: "no camera available"}
	}
	if !r.has(DeviceAudioInput, audioID) {
		return nil, &DeviceError{Reason: "no microphone available"}
	}

	stream := &RelayStream{VideoID: videoID, AudioID: audioID, pausable: r.pausable}
	r.streams = append(r.streams, stream)
	return stream, nil
}

// has matches id against devices of kind; an empty id accepts any device.
func (r *RelayDevices) has(kind DeviceKind, id string) bool {
	for _, d := range r.devices {
		if d.Kind == kind && (id == "" || d.ID == id) {
			return true
		}
	}
	return false
}

// OpenStreams counts streams handed out and not yet stopped.
func (r *RelayDevices) OpenStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.streams {
		if !s.Stopped() {
			n++
		}
	}
	return n
}

type RelayStream struct {
	VideoID  string
	AudioID  string
	pausable bool
	stopped  atomic.Bool
}

func (s *RelayStream) Stop()          { s.stopped.Store(true) }
func (s *RelayStream) Stopped() bool  { return s.stopped.Load() }
func (s *RelayStream) CanPause() bool { return s.pausable }
