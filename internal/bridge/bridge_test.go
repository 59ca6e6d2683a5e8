package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkepunktli/hslu-iot/internal/domain"
	"github.com/gurkepunktli/hslu-iot/internal/ratelimit"
	"github.com/gurkepunktli/hslu-iot/internal/router"
	"github.com/gurkepunktli/hslu-iot/internal/theft"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.TheftAlert
}

func (n *fakeNotifier) Fire(alert domain.TheftAlert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type fakeState struct {
	snaps []domain.DeviceSnapshot
}

func (s *fakeState) Offer(snap domain.DeviceSnapshot) {
	s.snaps = append(s.snaps, snap)
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	bridge    *Bridge
	publisher *fakePublisher
	notifier  *fakeNotifier
	state     *fakeState
	clock     *clock
}

func newHarness() *harness {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		publisher: &fakePublisher{},
		notifier:  &fakeNotifier{},
		state:     &fakeState{},
		clock:     &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	r := router.NewRouter(map[string]string{"gps": "pi/gps"}, "gateway/", "pi/", logger)
	h.bridge = NewBridge(
		[]string{"gateway/pi9/gps", "gps"},
		"pi9",
		r,
		ratelimit.NewLimiter(10*time.Second),
		theft.NewDetector(10, h.notifier, logger),
		h.publisher,
		h.state,
		logger,
	)
	h.bridge.now = h.clock.now
	return h
}

func msg(topic, payload string) domain.Message {
	return domain.Message{Topic: topic, Payload: []byte(payload)}
}

func TestForwardsWithPrefixRewrite(t *testing.T) {
	h := newHarness()

	out := h.bridge.Handle(context.Background(), msg("gateway/pi9/status", `{"ok":true}`))

	assert.Equal(t, Forwarded, out)
	sent := h.publisher.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "pi/pi9/status", sent[0].topic)
	assert.Equal(t, `{"ok":true}`, string(sent[0].payload))
}

func TestAliasAndPassThrough(t *testing.T) {
	h := newHarness()

	h.bridge.Handle(context.Background(), msg("gps", `{}`))
	h.bridge.Handle(context.Background(), msg("sensors/temp", `21.5`))

	sent := h.publisher.all()
	require.Len(t, sent, 2)
	assert.Equal(t, "pi/gps", sent[0].topic)
	assert.Equal(t, "sensors/temp", sent[1].topic)
}

func TestRejectsEmptyTopic(t *testing.T) {
	h := newHarness()

	assert.Equal(t, Rejected, h.bridge.Handle(context.Background(), msg("", `{}`)))
	assert.Empty(t, h.publisher.all())
}

func TestCooldownPerOutboundTopic(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	assert.Equal(t, Forwarded, h.bridge.Handle(ctx, msg("gateway/pi9/status", `1`)))
	h.clock.advance(9 * time.Second)
	assert.Equal(t, RateLimited, h.bridge.Handle(ctx, msg("gateway/pi9/status", `2`)))
	assert.Equal(t, Forwarded, h.bridge.Handle(ctx, msg("gateway/pi9/other", `3`)))
	h.clock.advance(1 * time.Second)
	assert.Equal(t, Forwarded, h.bridge.Handle(ctx, msg("gateway/pi9/status", `4`)))

	assert.Len(t, h.publisher.all(), 3)
}

func TestGPSLongRenamedToLon(t *testing.T) {
	h := newHarness()

	h.bridge.Handle(context.Background(),
		msg("gateway/pi9/gps", `{"device":"pi9","fix":true,"lat":47.0502,"long":8.3093,"lockmode":false}`))

	sent := h.publisher.all()
	require.Len(t, sent, 1)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(sent[0].payload, &fields))
	assert.Equal(t, 8.3093, fields["lon"])
	assert.NotContains(t, fields, "long")
	assert.Equal(t, 47.0502, fields["lat"])
}

func TestNonGPSTopicNotRewritten(t *testing.T) {
	h := newHarness()
	payload := `{"long":8.3093}`

	h.bridge.Handle(context.Background(), msg("gateway/pi9/status", payload))

	sent := h.publisher.all()
	require.Len(t, sent, 1)
	assert.Equal(t, payload, string(sent[0].payload))
	assert.Empty(t, h.state.snaps)
}

func TestUndecodableGPSRelayedVerbatim(t *testing.T) {
	h := newHarness()

	out := h.bridge.Handle(context.Background(), msg("gateway/pi9/gps", `$GPGGA,garbage`))

	assert.Equal(t, Forwarded, out)
	sent := h.publisher.all()
	require.Len(t, sent, 1)
	assert.Equal(t, `$GPGGA,garbage`, string(sent[0].payload))
	assert.Empty(t, h.state.snaps)
}

func TestTheftAlertFromLockedMovement(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.bridge.Handle(ctx, msg("gateway/pi9/gps", `{"fix":true,"lat":47.0502,"long":8.3093,"lockmode":true}`))
	h.clock.advance(10 * time.Second)
	h.bridge.Handle(ctx, msg("gateway/pi9/gps", `{"fix":true,"lat":47.05065,"long":8.3093,"lockmode":true}`))

	assert.Equal(t, 1, h.notifier.count())
	require.Len(t, h.state.snaps, 2)
	assert.Equal(t, domain.StateLockedBaseline, h.state.snaps[0].State)
	assert.Equal(t, domain.StateLockedAlerted, h.state.snaps[1].State)
	assert.Equal(t, "pi9", h.state.snaps[1].DeviceID)
}

func TestRateLimitedGPSStillReachesDetector(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	h.bridge.Handle(ctx, msg("gateway/pi9/gps", `{"fix":true,"lat":47.0502,"long":8.3093,"lockmode":true}`))
	out := h.bridge.Handle(ctx, msg("gateway/pi9/gps", `{"fix":true,"lat":47.05065,"long":8.3093,"lockmode":true}`))

	assert.Equal(t, RateLimited, out)
	assert.Equal(t, 1, h.notifier.count())
}

func TestPublishFailureDoesNotStopLoop(t *testing.T) {
	h := newHarness()
	h.publisher.err = errors.New("not connected")

	assert.Equal(t, PublishFailed, h.bridge.Handle(context.Background(), msg("gateway/pi9/status", `1`)))

	h.publisher.err = nil
	h.clock.advance(10 * time.Second)
	assert.Equal(t, Forwarded, h.bridge.Handle(context.Background(), msg("gateway/pi9/status", `2`)))
}

func TestRunDrainsUntilClosed(t *testing.T) {
	h := newHarness()
	in := make(chan domain.Message, 2)
	in <- msg("gateway/pi9/a", `1`)
	in <- msg("gateway/pi9/b", `2`)
	close(in)

	done := make(chan struct{})
	go func() {
		h.bridge.Run(context.Background(), in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after input closed")
	}
	assert.Len(t, h.publisher.all(), 2)
}

func TestDecodeGPS(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    domain.GPSReading
		wantErr bool
	}{
		{
			name:    "full reading",
			payload: `{"device":"pi7","ts":1777000000,"fix":true,"lat":47.1,"long":8.2,"alt":440.5,"lockmode":true,"speed_kn":1.5}`,
			want:    domain.GPSReading{Device: "pi7", TS: 1777000000, Fix: true, Lat: 47.1, Lon: 8.2, Alt: 440.5, Lockmode: true},
		},
		{
			name:    "missing device uses fallback",
			payload: `{"fix":false}`,
			want:    domain.GPSReading{Device: "pi9"},
		},
		{
			name:    "lon preferred over long",
			payload: `{"lat":47.1,"lon":8.4,"long":8.2}`,
			want:    domain.GPSReading{Device: "pi9", Lat: 47.1, Lon: 8.4},
		},
		{
			name:    "garbled field is zero",
			payload: `{"lat":"north","fix":"yes","long":8.2}`,
			want:    domain.GPSReading{Device: "pi9", Lon: 8.2},
		},
		{name: "not json", payload: `nope`, wantErr: true},
		{name: "json null", payload: `null`, wantErr: true},
		{name: "json array", payload: `[1,2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := decodeGPS([]byte(tt.payload), "pi9")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			got.SpeedKn = nil
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeGPSSpeed(t *testing.T) {
	got, _, err := decodeGPS([]byte(`{"speed_kn":2.5}`), "pi9")
	require.NoError(t, err)
	require.NotNil(t, got.SpeedKn)
	assert.Equal(t, 2.5, *got.SpeedKn)
}

func TestRenameKeepsPayloadWhenLonPresent(t *testing.T) {
	payload := []byte(`{"lon":8.4,"long":8.2}`)
	_, out, err := decodeGPS(payload, "pi9")
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}
