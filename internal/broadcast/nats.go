package broadcast

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fingle-ai/chat-platform/pkg/logger"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSBroadcaster fans out over core NATS publish. Used when deployments
// already run a NATS bus for their UI event plane.
type NATSBroadcaster struct {
	conn *nats.Conn
	log  *logger.Logger
}

// natsSubject maps a conversation to a NATS subject.
func natsSubject(conversationID string) string {
	return "conv." + conversationID
}

// NewNATS establishes a connection to the NATS server.
func NewNATS(cfg NATSConfig, log *logger.Logger) (*NATSBroadcaster, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBroadcaster{conn: nc, log: log}, nil
}

// Publish broadcasts a payload on the conversation's subject.
func (b *NATSBroadcaster) Publish(ctx context.Context, conversationID string, payload []byte) error {
	return b.conn.Publish(natsSubject(conversationID), payload)
}

// Subscribe opens a live subscription for a conversation.
func (b *NATSBroadcaster) Subscribe(ctx context.Context, conversationID string) (Subscription, error) {
	msgs := make(chan *nats.Msg, 64)
	sub, err := b.conn.ChanSubscribe(natsSubject(conversationID), msgs)
	if err != nil {
		return nil, err
	}

	ns := &natsSubscription{sub: sub, msgs: msgs, ch: make(chan []byte, 64)}
	go ns.pump()
	return ns, nil
}

// Healthy reports whether the connection is up.
func (b *NATSBroadcaster) Healthy() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close closes the NATS connection.
func (b *NATSBroadcaster) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

type natsSubscription struct {
	sub  *nats.Subscription
	msgs chan *nats.Msg
	ch   chan []byte
}

func (s *natsSubscription) pump() {
	defer close(s.ch)
	for msg := range s.msgs {
		// Drop on a full buffer; a stalled reader must not pin this
		// goroutine.
		select {
		case s.ch <- msg.Data:
		default:
		}
	}
}

func (s *natsSubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *natsSubscription) Close() error {
	err := s.sub.Unsubscribe()
	close(s.msgs)
	return err
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
