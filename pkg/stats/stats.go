// Package stats publishes driver counters to a Redis hash so that other
// tools can watch a running bridge.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/garyburd/redigo/redis"
	"github.com/platinasystems/log"

	"github.com/OpenTraceLab/encspi/pkg/enc28j60"
)

// KeyPrefix is prepended to the device name to form the hash key
const KeyPrefix = "encspi:"

// Snapshot is one published sample
type Snapshot struct {
	Counters enc28j60.Counters
	Link     bool
	LinkErr  error // why Link could not be read; Link is then meaningless
	State    enc28j60.State
	Revision enc28j60.Revision
	Extra    []enc28j60.Field
}

// Fields flattens the snapshot to hash fields
func (s Snapshot) Fields() map[string]string {
	m := make(map[string]string)
	for _, f := range s.Counters.Fields() {
		m[f.Name] = fmt.Sprint(f.Value)
	}
	for _, f := range s.Extra {
		m[f.Name] = fmt.Sprint(f.Value)
	}
	m["link"], m["link_error"] = "down", ""
	switch {
	case s.LinkErr != nil:
		m["link"], m["link_error"] = "unknown", s.LinkErr.Error()
	case s.Link:
		m["link"] = "up"
	}
	m["state"] = s.State.String()
	m["revision"] = s.Revision.String()
	return m
}

// Source produces snapshots; see DriverSource
type Source func() Snapshot

// DriverStatus is what DriverSource needs from the driver
type DriverStatus interface {
	Counters() enc28j60.Counters
	State() enc28j60.State
	Revision() enc28j60.Revision
	LinkStatus() (bool, error)
}

// DriverSource samples drv. extra, when set, adds fields such as bridge
// counters.
func DriverSource(drv DriverStatus, extra func() []enc28j60.Field) Source {
	return func() Snapshot {
		link, err := drv.LinkStatus()
		s := Snapshot{
			Counters: drv.Counters(),
			Link:     link,
			LinkErr:  err,
			State:    drv.State(),
			Revision: drv.Revision(),
		}
		if extra != nil {
			s.Extra = extra()
		}
		return s
	}
}

// connGetter is satisfied by *redis.Pool.
type connGetter interface {
	Get() redis.Conn
}

// Publisher writes snapshots with HSET, one field per counter
type Publisher struct {
	pool connGetter
}

// NewPool returns a small pool dialing addr over TCP
func NewPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(time.Second),
				redis.DialReadTimeout(time.Second),
				redis.DialWriteTimeout(time.Second))
		},
	}
}

func NewPublisher(pool *redis.Pool) *Publisher {
	return &Publisher{pool: pool}
}

// Key returns the hash key for device name
func Key(name string) string {
	return KeyPrefix + name
}

// Publish pipelines one HSET per field under Key(name)
func (p *Publisher) Publish(ctx context.Context, name string, s Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := p.pool.Get()
	defer conn.Close()

	key := Key(name)
	fields := s.Fields()
	for field, value := range fields {
		if err := conn.Send("HSET", key, field, value); err != nil {
			return fmt.Errorf("stats: HSET %s %s: %w", key, field, err)
		}
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("stats: flush: %w", err)
	}
	for range fields {
		if _, err := conn.Receive(); err != nil {
			return fmt.Errorf("stats: %s: %w", key, err)
		}
	}
	return nil
}

// Run publishes a sample from src every interval until ctx ends. Publish
// failures are logged and retried on the next tick.
func (p *Publisher) Run(ctx context.Context, name string, every time.Duration, src Source) {
	t := time.NewTicker(every)
	defer t.Stop()
	failed := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := p.Publish(ctx, name, src())
		switch {
		case err != nil && !failed:
			log.Print("err", "stats: ", err)
			failed = true
		case err == nil && failed:
			log.Print("info", "stats: publishing to redis again")
			failed = false
		}
	}
}
