// Package audio captures microphone input for dictation jobs.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"speech-desk/internal/domain"
)

// Whisper expects 16 kHz mono float32 samples.
const (
	SampleRate = 16000
	Channels   = 1
)

// Recorder captures audio from the default microphone into a float32
// buffer ready for transcription.
type Recorder struct {
	ctx *malgo.AllocatedContext

	mu        sync.Mutex
	device    *malgo.Device
	buf       []float32
	recording bool
}

// NewRecorder initializes the audio backend. Call Close when done.
func NewRecorder() (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Recorder{ctx: ctx}, nil
}

// checkInputDevice verifies a capture device exists before a recording
// starts, so a missing microphone surfaces as a device failure instead
// of an empty transcript.
func (r *Recorder) checkInputDevice() error {
	devices, err := r.ctx.Devices(malgo.Capture)
	if err != nil {
		return domain.NewJobError(domain.FailureDeviceUnavailable, domain.JobStatusCreated,
			"cannot enumerate audio input devices", err)
	}
	if len(devices) == 0 {
		return domain.NewJobError(domain.FailureDeviceUnavailable, domain.JobStatusCreated,
			"no audio input device available", nil)
	}
	return nil
}

// Start begins capturing from the default microphone.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("already recording")
	}
	r.buf = r.buf[:0]
	r.recording = true
	r.mu.Unlock()

	fail := func(err error) error {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return err
	}

	if err := r.checkInputDevice(); err != nil {
		return fail(err)
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = Channels
	deviceCfg.SampleRate = SampleRate

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: r.onData})
	if err != nil {
		return fail(fmt.Errorf("initializing capture device: %w", err))
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fail(fmt.Errorf("starting capture device: %w", err))
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()
	return nil
}

// Stop ends the capture and returns the recorded samples.
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false

	result := make([]float32, len(r.buf))
	copy(result, r.buf)
	return result
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		r.ctx.Free()
	}
	return nil
}

func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	samples := bytesToFloat32(pSample, frameCount*Channels)

	r.mu.Lock()
	r.buf = append(r.buf, samples...)
	r.mu.Unlock()
}

// bytesToFloat32 converts little-endian float32 bytes to samples.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
