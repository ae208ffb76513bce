package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vrcwmt/worldperm/internal/config"
	"github.com/vrcwmt/worldperm/internal/roster"
)

func sampleChange() Change {
	return Change{
		RequestID: uuid.MustParse("6f1c2d9e-0000-4000-8000-000000000001"),
		Op:        roster.OpAdd,
		Category:  roster.Securiter,
		Pseudonym: "alice",
		Actor:     "bob",
		At:        time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func TestMulti(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := NewMockNotifier(ctrl)
	b := NewMockNotifier(ctrl)

	boom := errors.New("boom")
	change := sampleChange()
	a.EXPECT().RosterUpdate(gomock.Any(), change).Return(boom)
	b.EXPECT().RosterUpdate(gomock.Any(), change).Return(nil)
	a.EXPECT().ImageUpdate(gomock.Any(), "pub/sfinx.png").Return(nil)
	b.EXPECT().ImageUpdate(gomock.Any(), "pub/sfinx.png").Return(nil)

	m := Multi(a, b)
	assert.ErrorIs(t, m.RosterUpdate(context.Background(), change), boom)
	assert.NoError(t, m.ImageUpdate(context.Background(), "pub/sfinx.png"))
}

func TestChangeJSON(t *testing.T) {
	data, err := json.Marshal(sampleChange())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"request_id": "6f1c2d9e-0000-4000-8000-000000000001",
		"op": "add",
		"category": "SECURITER",
		"pseudonym": "alice",
		"actor": "bob",
		"at": "2026-10-19T12:00:00Z"
	}`, string(data))
}

func TestNewSlack(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.SlackConfig
		enabled bool
	}{
		{name: "nil config", cfg: nil, enabled: false},
		{name: "disabled config", cfg: &config.SlackConfig{WebhookURL: "https://hooks.slack.com/test"}, enabled: false},
		{name: "empty webhook", cfg: &config.SlackConfig{Enabled: true}, enabled: false},
		{name: "valid config", cfg: &config.SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/test"}, enabled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.enabled, NewSlack(tt.cfg).Enabled())
		})
	}
}

func TestSlack_RosterUpdate(t *testing.T) {
	var received slackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlack(&config.SlackConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		Channel:    "#world",
		NotifyOn:   config.SlackNotifySettings{Roster: true},
	})

	change := sampleChange()
	change.Op = roster.OpRemove
	require.NoError(t, s.RosterUpdate(context.Background(), change))

	assert.Equal(t, "#world", received.Channel)
	assert.Contains(t, received.Text, "Pseudonym Removed")
	assert.Contains(t, received.Text, "alice (SECURITER)")
	require.Len(t, received.Blocks, 3)
	assert.Equal(t, "context", received.Blocks[2].Type)

	var texts []string
	for _, f := range received.Blocks[1].Fields {
		texts = append(texts, f.Text)
	}
	joined := strings.Join(texts, "|")
	assert.Contains(t, joined, "`alice`")
	assert.Contains(t, joined, "*By:*\nbob")
	assert.Contains(t, joined, "`6f1c2d9e...`")
}

func TestSlack_EventFiltering(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlack(&config.SlackConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		NotifyOn:   config.SlackNotifySettings{Roster: true, Image: false},
	})

	require.NoError(t, s.RosterUpdate(context.Background(), sampleChange()))
	require.NoError(t, s.ImageUpdate(context.Background(), "pub/sfinx.png"))
	assert.Equal(t, 1, calls)
}

func TestSlack_Disabled(t *testing.T) {
	assert.NoError(t, NewSlack(nil).RosterUpdate(context.Background(), sampleChange()))
}

func TestSlack_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	s := NewSlack(&config.SlackConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		NotifyOn:   config.SlackNotifySettings{Image: true},
	})
	err := s.ImageUpdate(context.Background(), "pub/sfinx.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSlack_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSlack(&config.SlackConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		NotifyOn:   config.SlackNotifySettings{Roster: true},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, s.RosterUpdate(ctx, sampleChange()))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_RosterUpdate(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{logger: zap.NewNop().Sugar(), w: w}

	require.NoError(t, k.RosterUpdate(context.Background(), sampleChange()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "alice", string(msg.Key))
	assert.Equal(t, []kafka.Header{{Key: changeTypeHeader, Value: []byte(changeTypeRoster)}}, msg.Headers)

	var got Change
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, sampleChange(), got)
}

func TestKafka_ImageUpdate(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{logger: zap.NewNop().Sugar(), w: w}

	require.NoError(t, k.ImageUpdate(context.Background(), "pub/sfinx.png"))
	require.Len(t, w.msgs, 1)
	assert.JSONEq(t, `{"path":"pub/sfinx.png"}`, string(w.msgs[0].Value))
	assert.Equal(t, changeTypeImage, string(w.msgs[0].Headers[0].Value))
}

func TestKafka_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	k := &Kafka{logger: zap.NewNop().Sugar(), w: &fakeWriter{err: boom}}
	assert.ErrorIs(t, k.RosterUpdate(context.Background(), sampleChange()), boom)
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
	deadline      bool
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	_, f.deadline = ctx.Deadline()
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestRabbitMQ_RosterUpdate(t *testing.T) {
	ch := &fakeChannel{}
	r := &RabbitMQ{exchange: "world-permissions", channel: ch}

	require.NoError(t, r.RosterUpdate(context.Background(), sampleChange()))
	assert.Equal(t, "world-permissions", ch.exchange)
	assert.Equal(t, changeTypeRoster, ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.True(t, ch.deadline, "publish is bounded")

	var got Change
	require.NoError(t, json.Unmarshal(ch.msg.Body, &got))
	assert.Equal(t, "alice", got.Pseudonym)
	assert.Equal(t, roster.Securiter, got.Category)

	require.NoError(t, r.Close())
}
