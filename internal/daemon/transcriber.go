package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codev612/hearnow/internal/transcript"
)

// ErrNotConnected is returned by commands issued before Connect succeeded or
// after the connection dropped.
var ErrNotConnected = errors.New("daemon not connected")

// Transcriber drives a daemon session and assembles its partial and segment
// events into a bubble stream. It uses two connections: one for commands and
// one for the event subscription.
type Transcriber struct {
	socketPath string
	stream     *transcript.Stream
	log        zerolog.Logger
	notices    chan Event

	mu        sync.Mutex
	client    *Client
	evClient  *Client
	connected bool
	recording bool
	stopping  bool
	sessionID string
}

// NewTranscriber creates a transcriber for the daemon at socketPath.
func NewTranscriber(socketPath string, log zerolog.Logger) *Transcriber {
	return &Transcriber{
		socketPath: socketPath,
		stream:     transcript.NewStream(),
		log:        log,
		notices:    make(chan Event, 64),
	}
}

// Stream returns the live bubble stream.
func (t *Transcriber) Stream() *transcript.Stream { return t.stream }

// Notices delivers the events that are not transcript text (levels, status,
// errors, disconnects). Events are dropped when nobody is reading.
func (t *Transcriber) Notices() <-chan Event { return t.notices }

// Connect opens both connections, subscribes to events and starts pumping
// them into the stream. Reconnecting replaces any previous connections.
func (t *Transcriber) Connect(ctx context.Context) error {
	client, err := ConnectContext(ctx, t.socketPath)
	if err != nil {
		return err
	}
	evClient, err := ConnectContext(ctx, t.socketPath)
	if err != nil {
		client.Close()
		return err
	}
	if err := evClient.Subscribe(ctx); err != nil {
		client.Close()
		evClient.Close()
		return err
	}

	t.mu.Lock()
	t.closeLocked()
	t.client, t.evClient = client, evClient
	t.connected = true
	t.mu.Unlock()

	if resp, err := client.SendCommandContext(ctx, Command{Cmd: CmdStatus}); err == nil && resp.Recording != nil {
		t.mu.Lock()
		t.recording = *resp.Recording
		t.sessionID = resp.SessionID
		t.mu.Unlock()
	}

	go t.pump(evClient)
	t.log.Info().Str("socket", t.socketPath).Msg("daemon connected")
	return nil
}

// Close drops both connections.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
	return nil
}

func (t *Transcriber) closeLocked() {
	if t.client != nil {
		t.client.Close()
		t.client = nil
	}
	if t.evClient != nil {
		t.evClient.Close()
		t.evClient = nil
	}
	t.connected = false
}

// Start begins recording. System audio is always captured; useMic adds the
// microphone.
func (t *Transcriber) Start(ctx context.Context, useMic bool) error {
	client, err := t.commandClient()
	if err != nil {
		return err
	}
	resp, err := client.Do(ctx, Command{
		Cmd:         CmdStart,
		Mic:         BoolPtr(useMic),
		SystemAudio: BoolPtr(true),
	})
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.recording = true
	t.sessionID = resp.SessionID
	t.mu.Unlock()
	return nil
}

// Stop ends recording. Open drafts are finalized by the daemon's trailing
// segment events.
func (t *Transcriber) Stop(ctx context.Context) error {
	client, err := t.commandClient()
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.stopping = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.stopping = false
		t.mu.Unlock()
	}()

	if _, err := client.Do(ctx, Command{Cmd: CmdStop}); err != nil {
		return err
	}

	t.mu.Lock()
	t.recording = false
	t.mu.Unlock()
	return nil
}

// Clear empties the stream.
func (t *Transcriber) Clear() { t.stream.Clear() }

// Connected reports whether both connections are up.
func (t *Transcriber) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Recording reports whether the daemon is capturing audio.
func (t *Transcriber) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

// Stopping reports whether a stop command is in flight.
func (t *Transcriber) Stopping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopping
}

// SessionID returns the daemon's id for the current recording.
func (t *Transcriber) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *Transcriber) commandClient() (*Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.client == nil {
		return nil, ErrNotConnected
	}
	return t.client, nil
}

func (t *Transcriber) pump(evClient *Client) {
	for {
		ev, err := evClient.ReadEvent()
		if err != nil {
			t.mu.Lock()
			current := t.evClient == evClient
			if current {
				t.closeLocked()
				t.recording = false
			}
			t.mu.Unlock()
			if current {
				t.log.Warn().Err(err).Msg("daemon event stream ended")
				t.notify(Event{Event: EventDisconnected, Message: err.Error()})
			}
			return
		}
		t.handleEvent(ev)
	}
}

func (t *Transcriber) handleEvent(ev Event) {
	switch ev.Event {
	case EventPartial:
		t.stream.ApplyPartial(transcript.ParseSource(ev.Source), ev.Text)
		return
	case EventSegment:
		t.stream.ApplyFinal(transcript.ParseSource(ev.Source), ev.Text)
		return
	case EventStatus:
		if ev.Recording != nil {
			t.mu.Lock()
			t.recording = *ev.Recording
			t.mu.Unlock()
		}
	case EventError:
		t.log.Warn().Str("message", ev.Message).Msg("daemon error")
	}
	t.notify(ev)
}

func (t *Transcriber) notify(ev Event) {
	select {
	case t.notices <- ev:
	default:
	}
}
