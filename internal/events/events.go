/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package events publishes room events (finished rounds, closed rooms) for
// consumers outside the game server.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const DefaultPrefix = "impostor"

// Config holds configuration for the NATS publisher
type Config struct {
	URL           string
	Prefix        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default NATS publisher configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Prefix:        DefaultPrefix,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Subject joins a prefix and an event name into a NATS subject.
func Subject(prefix, event string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		return event
	}
	return prefix + "." + event
}

// NATS publishes JSON-encoded events to a NATS server.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials the NATS server described by cfg.
func Connect(cfg Config) (*NATS, error) {
	opts := []nats.Option{
		nats.Name("impostor"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATS{nc: nc, prefix: cfg.Prefix}, nil
}

// Publish encodes v as JSON and publishes it under the configured prefix.
func (n *NATS) Publish(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}

	if err := n.nc.Publish(Subject(n.prefix, event), data); err != nil {
		return fmt.Errorf("publish %s event: %w", event, err)
	}

	return nil
}

// Close flushes pending events and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}

// Discard drops every event. It is used when no NATS server is configured.
type Discard struct{}

func (Discard) Publish(string, any) error { return nil }
