package sqlgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Keepalive periodically pings an idle connection so MySQL-style servers
// don't drop it for inactivity. It is the consumer of the connection's
// last-use bookkeeping: a ping is only sent when no statement has gone out
// for longer than the idle threshold.
type Keepalive struct {
	conn      *Conn
	interval  time.Duration
	idleAfter time.Duration

	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
	running bool
}

// NewKeepalive creates a pinger that checks the connection every interval and
// pings when it has been idle for at least idleAfter.
func NewKeepalive(conn *Conn, interval, idleAfter time.Duration) *Keepalive {
	return &Keepalive{
		conn:      conn,
		interval:  interval,
		idleAfter: idleAfter,
		cron:      cron.New(),
	}
}

// Start schedules the pinger. Calling Start on a running pinger is a no-op.
func (k *Keepalive) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return nil
	}

	entryID, err := k.cron.AddFunc(fmt.Sprintf("@every %s", k.interval), k.ping)
	if err != nil {
		return fmt.Errorf("failed to schedule keepalive: %w", err)
	}
	k.entryID = entryID
	k.cron.Start()
	k.running = true

	log.Debug().Dur("interval", k.interval).Dur("idle_after", k.idleAfter).Msg("Keepalive started")
	return nil
}

// Stop cancels the schedule and waits for a ping in flight to finish.
func (k *Keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.running {
		return
	}
	k.cron.Remove(k.entryID)
	<-k.cron.Stop().Done()
	k.running = false

	log.Debug().Msg("Keepalive stopped")
}

func (k *Keepalive) ping() {
	if !k.conn.IsConnected() {
		return
	}
	if time.Since(k.conn.LastUsed()) < k.idleAfter {
		return
	}

	res, err := k.conn.Query(context.Background(), "SELECT 1")
	if err != nil {
		log.Warn().Err(err).Msg("Keepalive ping failed")
		return
	}
	if res != nil {
		res.Close()
	}
	log.Trace().Msg("Keepalive ping sent")
}
