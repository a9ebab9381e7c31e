package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/sharesphere/spherecore/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	notifications := []*models.Notification{
		{ID: 1, UserID: 10, TriggerUserID: 11, SphereID: 3, PostID: 5, Type: models.NotifyReply, CreatedAt: created,
			CommentID: sql.NullInt64{Int64: 8, Valid: true}},
		{ID: 2, UserID: 12, TriggerUserID: 11, SphereID: 3, PostID: 5, Type: models.NotifyVote, CreatedAt: created},
	}
	if err := p.Publish(context.Background(), notifications); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "10" {
		t.Errorf("key = %q, want recipient id", w.msgs[0].Key)
	}

	var ev map[string]interface{}
	if err := json.Unmarshal(w.msgs[0].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev["type"] != "reply" {
		t.Errorf("type = %v, want reply", ev["type"])
	}
	if ev["comment_id"] != float64(8) {
		t.Errorf("comment_id = %v, want 8", ev["comment_id"])
	}
	if _, ok := ev["satellite_id"]; ok {
		t.Error("satellite_id should be omitted when null")
	}
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newKafkaPublisher(w)

	if err := p.Publish(context.Background(), nil); err != nil {
		t.Errorf("empty batch should not reach the writer, got %v", err)
	}
	if err := p.Publish(context.Background(), []*models.Notification{{ID: 1}}); err == nil {
		t.Error("expected writer error")
	}
}
