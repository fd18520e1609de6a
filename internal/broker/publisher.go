package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/campaignboard/internal/campaigns"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	defaultBufferSize = 256
	contentTypeJSON   = "application/json"
	timestampLayout   = "2006-01-02T15:04:05.000Z07:00"
)

var (
	errMissingChannel = errors.New("amqp channel is required")
	errMissingQueue   = errors.New("queue name is required")
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type PublisherConfig struct {
	Queue      string
	BufferSize int
	Logger     *zap.Logger
}

// ActivityPublisher forwards activity entries to a durable AMQP queue. NotifyActivity
// never blocks: entries that do not fit in the buffer are dropped and logged.
type ActivityPublisher struct {
	channel Channel
	closers []func() error
	queue   string
	logger  *zap.Logger

	mu      sync.Mutex
	closed  bool
	pending chan campaigns.Activity
	done    chan struct{}
}

type activityMessage struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	CampaignID   string `json:"campaignId"`
	CampaignName string `json:"campaignName,omitempty"`
	PostID       string `json:"postId,omitempty"`
	Platform     string `json:"platform,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Dial connects to the broker at url and returns a running publisher that owns the connection.
func Dial(url string, cfg PublisherConfig) (*ActivityPublisher, error) {
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp broker: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	publisher, err := NewActivityPublisher(channel, cfg)
	if err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, err
	}
	publisher.closers = append(publisher.closers, connection.Close)
	return publisher, nil
}

// NewActivityPublisher declares the queue on channel and starts the delivery goroutine.
func NewActivityPublisher(channel Channel, cfg PublisherConfig) (*ActivityPublisher, error) {
	if channel == nil {
		return nil, errMissingChannel
	}
	if cfg.Queue == "" {
		return nil, errMissingQueue
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	queue, err := channel.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}

	publisher := &ActivityPublisher{
		channel: channel,
		queue:   queue.Name,
		logger:  logger.With(zap.String("queue", queue.Name)),
		pending: make(chan campaigns.Activity, bufferSize),
		done:    make(chan struct{}),
	}
	go publisher.run()
	return publisher, nil
}

// NotifyActivity queues an activity entry for delivery.
func (p *ActivityPublisher) NotifyActivity(activity campaigns.Activity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.pending <- activity:
	default:
		p.logger.Warn("activity publish buffer full; dropping entry",
			zap.String("activity_id", activity.ID),
			zap.String("type", string(activity.Type)))
	}
}

// Close stops accepting entries, delivers what is already buffered and releases the channel.
func (p *ActivityPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.pending)
	p.mu.Unlock()

	<-p.done

	var errs []error
	if err := p.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, closer := range p.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *ActivityPublisher) run() {
	defer close(p.done)
	for activity := range p.pending {
		if err := p.publish(activity); err != nil {
			p.logger.Error("failed to publish activity",
				zap.String("activity_id", activity.ID),
				zap.Error(err))
		}
	}
}

func (p *ActivityPublisher) publish(activity campaigns.Activity) error {
	body, err := json.Marshal(activityMessage{
		ID:           activity.ID,
		Type:         string(activity.Type),
		CampaignID:   activity.CampaignID,
		CampaignName: activity.CampaignName,
		PostID:       activity.PostID,
		Platform:     activity.Platform,
		Timestamp:    activity.Timestamp.UTC().Format(timestampLayout),
	})
	if err != nil {
		return err
	}
	return p.channel.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			MessageId:    activity.ID,
			Timestamp:    activity.Timestamp.UTC().Truncate(time.Second),
			Type:         string(activity.Type),
			Body:         body,
		},
	)
}
