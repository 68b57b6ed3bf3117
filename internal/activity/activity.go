// Package activity records who changed what.
package activity

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"subzone/internal/config"
	"subzone/internal/model"
)

type Store interface {
	LogActivity(ctx context.Context, a *model.Activity) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ipKey struct{}

// WithIP attaches the caller's address to ctx for later entries.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func ipFrom(ctx context.Context) string {
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}

// Recorder appends entries to the activity log and optionally mirrors
// them to a Kafka topic.
type Recorder struct {
	store  Store
	writer messageWriter
	log    logr.Logger
}

func NewRecorder(store Store, log logr.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// WithKafka enables publishing to the configured topic.
func (r *Recorder) WithKafka(cfg config.KafkaConfig) *Recorder {
	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.TLS {
		transport.TLS = &tls.Config{}
	}

	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
		WriteTimeout: 10 * time.Second,
	}
	r.log.Info("activity events enabled", "topic", cfg.Topic)
	return r
}

// Log stores an entry. Failures are logged, never returned: activity is
// not allowed to fail the operation it describes.
func (r *Recorder) Log(ctx context.Context, actor *model.Account, action, detail string) {
	entry := &model.Activity{
		Action:    action,
		Detail:    detail,
		IPAddress: ipFrom(ctx),
	}
	if actor != nil {
		entry.ActorID = actor.ID
		entry.ActorEmail = actor.Email
	}

	if err := r.store.LogActivity(ctx, entry); err != nil {
		r.log.Error(err, "failed to write activity", "action", action)
	}
	if r.writer != nil {
		r.publish(ctx, entry)
	}
}

func (r *Recorder) publish(ctx context.Context, entry *model.Activity) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	value, err := json.Marshal(entry)
	if err != nil {
		r.log.Error(err, "failed to encode activity event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.writer.WriteMessages(ctx, kafka.Message{Key: []byte(entry.ActorID), Value: value}); err != nil {
		r.log.Error(err, "failed to publish activity event", "action", entry.Action)
	}
}

func (r *Recorder) Close() error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Close()
}
