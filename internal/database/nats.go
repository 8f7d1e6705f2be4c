package database

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stemsi/secureeval-backend/internal/config"
)

// NewNATSConn connects to NATS when NATS_URL is set. A nil connection with a
// nil error means event fan-out over NATS is disabled.
func NewNATSConn(cfg *config.Config, log zerolog.Logger) (*nats.Conn, error) {
	if cfg.NATSURL == "" {
		log.Info().Msg("NATS_URL not set, NATS publishing disabled")
		return nil, nil
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("secureeval-backend"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject_prefix", cfg.NATSSubject).
		Msg("NATS connected")

	return nc, nil
}
