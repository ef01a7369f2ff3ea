package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/securelane/gatepass/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        fmt.Sprintf("%d", time.Now().UnixNano()),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Pass lifecycle subjects
const (
	PassCreated     = "pass.created"
	PassApproved    = "pass.approved"
	PassRejected    = "pass.rejected"
	PassCheckedIn   = "pass.checked_in"
	PassCheckedOut  = "pass.checked_out"
	PassRescheduled = "pass.rescheduled"
)

// Event payloads
type PassCreatedEvent struct {
	PassID       string    `json:"pass_id"`
	VisitorName  string    `json:"visitor_name"`
	VisitorEmail string    `json:"visitor_email"`
	PassType     string    `json:"pass_type"`
	VisitingDate string    `json:"visiting_date"`
	VisitingTime string    `json:"visiting_time,omitempty"`
	WhomToMeet   string    `json:"whom_to_meet"`
	CreatedAt    time.Time `json:"created_at"`
}

type PassDecisionEvent struct {
	PassID       string    `json:"pass_id"`
	VisitorName  string    `json:"visitor_name"`
	VisitorEmail string    `json:"visitor_email"`
	VisitingDate string    `json:"visiting_date"`
	VisitingTime string    `json:"visiting_time,omitempty"`
	Status       string    `json:"status"`
	DecidedAt    time.Time `json:"decided_at"`
}

type PassMovementEvent struct {
	PassID      string    `json:"pass_id"`
	VisitorName string    `json:"visitor_name"`
	Inside      bool      `json:"inside"`
	At          time.Time `json:"at"`
}

type PassRescheduledEvent struct {
	PassID        string    `json:"pass_id"`
	VisitorName   string    `json:"visitor_name"`
	VisitorEmail  string    `json:"visitor_email"`
	NewDate       string    `json:"new_date"`
	NewTime       string    `json:"new_time"`
	RescheduledAt time.Time `json:"rescheduled_at"`
}
