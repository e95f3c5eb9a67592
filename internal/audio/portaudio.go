package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/lfs-stt/internal/config"
	"github.com/rs/zerolog"
)

var (
	errInputOverflow  = errors.New("input overflow: samples were discarded by the device")
	errInputUnderflow = errors.New("input underflow")
)

// PortAudioCapture delivers device blocks through a Relay from the PortAudio
// callback thread.
type PortAudioCapture struct {
	stream *portaudio.Stream
	device *portaudio.DeviceInfo
	format Format
	relay  *Relay
	errs   chan error
	log    zerolog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
}

var _ Source = (*PortAudioCapture)(nil)

// Open negotiates the native format with the input device and opens a paused
// callback stream. It fails with a ConfigurationError before any block is
// delivered if the device is missing or its channel count is not 1 or 2.
func Open(cfg config.AudioConfig, log zerolog.Logger) (*PortAudioCapture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	device, err := findDevice(cfg.DeviceID)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	format := Format{SampleRate: int(device.DefaultSampleRate), Channels: device.MaxInputChannels}
	if cfg.SampleRate > 0 {
		format.SampleRate = cfg.SampleRate
	}
	if cfg.Channels > 0 {
		format.Channels = cfg.Channels
	}
	if err := format.Validate(); err != nil {
		portaudio.Terminate()
		return nil, err
	}

	p := &PortAudioCapture{
		device: device,
		format: format,
		relay:  NewRelay(cfg.RelayCapacity),
		errs:   make(chan error, 8),
		log:    log,
	}

	framesPerBuffer := cfg.FramesPerBuffer
	if framesPerBuffer <= 0 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: format.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(format.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}, p.onBlock)
	if err != nil {
		portaudio.Terminate()
		return nil, &ConfigurationError{Field: "device", Value: device.Name, Reason: "failed to open input stream", Err: err}
	}
	p.stream = stream

	log.Info().
		Str("device", device.Name).
		Str("format", format.String()).
		Int("frames_per_buffer", framesPerBuffer).
		Msg("Using input device")

	return p, nil
}

func findDevice(deviceID string) (*portaudio.DeviceInfo, error) {
	if deviceID == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, &ConfigurationError{Field: "device_id", Value: "default", Err: fmt.Errorf("%w: %v", ErrNoDevice, err)}
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == deviceID && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, &ConfigurationError{Field: "device_id", Value: deviceID, Err: ErrNoDevice}
}

// onBlock runs on the PortAudio real-time thread. It copies the block, hands
// it to the relay and returns; faults go to the error channel.
func (p *PortAudioCapture) onBlock(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	defer func() {
		if r := recover(); r != nil {
			p.report(&CaptureError{Op: "callback", Err: fmt.Errorf("recovered: %v", r)})
		}
	}()

	if flags&portaudio.InputOverflow != 0 {
		p.report(&CaptureError{Op: "read", Err: errInputOverflow})
	}
	if flags&portaudio.InputUnderflow != 0 {
		p.report(&CaptureError{Op: "read", Err: errInputUnderflow})
	}

	frame := make([]float32, len(in))
	copy(frame, in)
	p.relay.Push(frame)
}

func (p *PortAudioCapture) report(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

func (p *PortAudioCapture) Format() Format { return p.format }
func (p *PortAudioCapture) Frames() <-chan []float32 { return p.relay.Frames() }
func (p *PortAudioCapture) Errors() <-chan error { return p.errs }
func (p *PortAudioCapture) Drops() <-chan struct{} { return p.relay.Drops() }
func (p *PortAudioCapture) Dropped() uint64 { return p.relay.Dropped() }

// Resume starts (or restarts) hardware delivery.
func (p *PortAudioCapture) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.running {
		return nil
	}
	if err := p.stream.Start(); err != nil {
		return &CaptureError{Op: "start", Err: err}
	}
	p.running = true
	return nil
}

// Pause stops hardware delivery. PortAudio waits for the in-flight callback,
// so at most one more block reaches the relay.
func (p *PortAudioCapture) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.running {
		return nil
	}
	if err := p.stream.Stop(); err != nil {
		return &CaptureError{Op: "stop", Err: err}
	}
	p.running = false
	return nil
}

// Close stops the stream, then closes the relay so the consumer drains and
// terminates. Safe to call more than once.
func (p *PortAudioCapture) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if p.running {
		if err := p.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop stream: %w", err))
		}
		p.running = false
	}
	if err := p.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close stream: %w", err))
	}
	p.relay.Close()
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("failed to terminate PortAudio: %w", err))
	}
	return errors.Join(errs...)
}

// ListDevices enumerates input devices. PortAudio must be initialized, which
// holds while a capture is open.
func ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			result = append(result, AudioDevice{
				ID:          d.Name,
				Name:        d.Name,
				Channels:    d.MaxInputChannels,
				DefaultRate: d.DefaultSampleRate,
				Default:     d == defaultDevice,
			})
		}
	}

	return result, nil
}

// ScanDevices initializes PortAudio just long enough to enumerate inputs.
func ScanDevices() ([]AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()
	return ListDevices()
}
