package presence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Observer answers "is this set of users online" reactively. It seeds from
// Redis, then applies join/leave events from the shared channel; a periodic
// resync against the keys repairs anything missed (dropped events, TTL
// expiry of a crashed session). IsOnline is an O(1) map read and the view
// is eventually consistent within one event or resync interval.
type Observer struct {
	rdb      *redis.Client
	log      zerolog.Logger
	onChange func(uid string, online bool)

	mu      sync.RWMutex
	watched map[string]struct{}
	online  map[string]struct{}

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewObserver creates an idle observer. onChange, if non-nil, fires on
// every watched user's transition; it must not block.
func NewObserver(rdb *redis.Client, log zerolog.Logger, onChange func(uid string, online bool)) *Observer {
	return &Observer{
		rdb:      rdb,
		log:      log.With().Str("component", "presence-observer").Logger(),
		onChange: onChange,
		watched:  make(map[string]struct{}),
		online:   make(map[string]struct{}),
	}
}

// Watch seeds the online view for uids and starts consuming events.
// Watching nothing costs nothing: no subscription is opened.
func (o *Observer) Watch(ctx context.Context, uids []string) error {
	if len(uids) == 0 {
		return nil
	}
	o.mu.Lock()
	for _, uid := range uids {
		o.watched[uid] = struct{}{}
	}
	o.mu.Unlock()

	snapshot, err := Query(ctx, o.rdb, uids)
	if err != nil {
		return err
	}
	o.resync(snapshot)

	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.mu.Unlock()

	go o.run(runCtx)
	return nil
}

func (o *Observer) IsOnline(uid string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.online[uid]
	return ok
}

func (o *Observer) Online() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.online))
	for uid := range o.online {
		out = append(out, uid)
	}
	return out
}

func (o *Observer) Close() {
	o.mu.Lock()
	cancel, done, started := o.cancel, o.done, o.started
	o.started = false
	o.cancel = nil
	o.mu.Unlock()
	if !started || cancel == nil {
		return
	}
	cancel()
	<-done
}

func (o *Observer) run(ctx context.Context) {
	defer close(o.done)
	pubsub := o.rdb.Subscribe(ctx, eventsChannel)
	defer pubsub.Close()

	ticker := time.NewTicker(resyncPeriod)
	defer ticker.Stop()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				o.log.Warn().Err(err).Msg("bad presence event")
				continue
			}
			o.apply(ev)
		case <-ticker.C:
			o.mu.RLock()
			uids := make([]string, 0, len(o.watched))
			for uid := range o.watched {
				uids = append(uids, uid)
			}
			o.mu.RUnlock()
			snapshot, err := Query(ctx, o.rdb, uids)
			if err != nil {
				o.log.Warn().Err(err).Msg("presence resync failed")
				continue
			}
			o.resync(snapshot)
		}
	}
}

// apply folds one join/leave event into the online view. Events for users
// outside the watched set are ignored.
func (o *Observer) apply(ev event) {
	o.mu.Lock()
	if _, watched := o.watched[ev.UID]; !watched {
		o.mu.Unlock()
		return
	}
	_, was := o.online[ev.UID]
	now := was
	switch ev.Type {
	case eventJoin:
		o.online[ev.UID] = struct{}{}
		now = true
	case eventLeave:
		delete(o.online, ev.UID)
		now = false
	}
	changed := was != now
	cb := o.onChange
	o.mu.Unlock()

	if changed && cb != nil {
		cb(ev.UID, now)
	}
}

// resync replaces the online view with an authoritative snapshot, firing
// onChange for every transition it reveals.
func (o *Observer) resync(snapshot map[string]bool) {
	type change struct {
		uid    string
		online bool
	}
	var changes []change

	o.mu.Lock()
	for uid, on := range snapshot {
		if _, watched := o.watched[uid]; !watched {
			continue
		}
		_, was := o.online[uid]
		if on && !was {
			o.online[uid] = struct{}{}
			changes = append(changes, change{uid, true})
		} else if !on && was {
			delete(o.online, uid)
			changes = append(changes, change{uid, false})
		}
	}
	cb := o.onChange
	o.mu.Unlock()

	if cb != nil {
		for _, c := range changes {
			cb(c.uid, c.online)
		}
	}
}
