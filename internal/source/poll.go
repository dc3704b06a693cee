package source

import (
	"context"
	"fmt"
	"time"
)

// pollListener emulates notifications for databases without LISTEN by
// comparing a schema fingerprint at a fixed interval.
type pollListener struct {
	interval    time.Duration
	channel     string
	readVersion func(ctx context.Context) (string, error)
	last        string
}

func newPollListener(ctx context.Context, cfg ListenConfig, readVersion func(ctx context.Context) (string, error)) (*pollListener, error) {
	fingerprint, err := readVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema fingerprint: %w", err)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	channel := ""
	if len(cfg.Channels) > 0 {
		channel = cfg.Channels[0]
	}
	return &pollListener{
		interval:    interval,
		channel:     channel,
		readVersion: readVersion,
		last:        fingerprint,
	}, nil
}

func (l *pollListener) Receive(ctx context.Context) (Notification, error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-ticker.C:
		}
		fingerprint, err := l.readVersion(ctx)
		if err != nil {
			return Notification{}, fmt.Errorf("read schema fingerprint: %w", err)
		}
		if fingerprint != l.last {
			l.last = fingerprint
			return Notification{Channel: l.channel, Payload: ReloadPayload}, nil
		}
	}
}

func (l *pollListener) Close() error {
	return nil
}
