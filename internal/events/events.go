// Package events publishes completed-turn notifications for downstream
// consumers such as analytics or transcript archiving.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// SubjectTurnCompleted is published after every turn that produced output.
const SubjectTurnCompleted = "weatherchat.turn.completed"

// TurnCompleted summarizes one turn. It carries no conversation context.
type TurnCompleted struct {
	SessionID string            `json:"session_id"`
	TurnID    string            `json:"turn_id"`
	Intent    string            `json:"intent"`
	City      string            `json:"city,omitempty"`
	DualMode  bool              `json:"dual_mode"`
	Backends  map[string]string `json:"backends"` // backend id -> final task status
	At        time.Time         `json:"at"`
}

// Publisher delivers events. Implementations must not block a turn on slow
// consumers.
type Publisher interface {
	Publish(subject string, data interface{}) error
	Close()
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, interface{}) error { return nil }
func (Nop) Close()                            {}

// NATS publishes JSON events to a NATS server.
type NATS struct {
	conn *nats.Conn
}

// Connect dials url. The client keeps retrying in the background, so a broker
// that is down at startup does not prevent serving.
func Connect(url, token string) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("weather-chat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATS{conn: nc}, nil
}

func (n *NATS) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.conn.Publish(subject, payload)
}

func (n *NATS) Close() {
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
