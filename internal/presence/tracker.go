package presence

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/loopmarket/backend/internal/repository"
)

// Tracker marks authenticated users online for as long as they hold a
// session, and keeps the durable last-seen column fresh so that users who
// drop ungracefully still display "seen N minutes ago" instead of nothing.
type Tracker struct {
	rdb      *redis.Client
	profiles repository.ProfileRepository
	log      zerolog.Logger
}

func NewTracker(rdb *redis.Client, profiles repository.ProfileRepository, log zerolog.Logger) *Tracker {
	return &Tracker{rdb: rdb, profiles: profiles, log: log.With().Str("component", "presence").Logger()}
}

// Start announces uid as online and returns a session whose Stop must be
// called on every exit path. If the process dies without Stop, the key's
// TTL expires the membership on its own.
func (t *Tracker) Start(ctx context.Context, uid string) (*Session, error) {
	now := time.Now()
	if err := t.rdb.Set(ctx, userKey(uid), now.Format(time.RFC3339), onlineTTL).Err(); err != nil {
		return nil, err
	}
	if err := publishEvent(ctx, t.rdb, eventJoin, uid); err != nil {
		t.log.Warn().Err(err).Str("uid", uid).Msg("publish join failed")
	}
	t.touchLastSeen(ctx, uid)

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{tracker: t, uid: uid, cancel: cancel, done: make(chan struct{})}
	go s.loop(sessionCtx)
	t.log.Debug().Str("uid", uid).Msg("tracking started")
	return s, nil
}

func (t *Tracker) touchLastSeen(ctx context.Context, uid string) {
	if t.profiles == nil {
		return
	}
	if err := t.profiles.TouchLastSeen(ctx, uid, time.Now()); err != nil {
		t.log.Warn().Err(err).Str("uid", uid).Msg("touch last_seen failed")
	}
}

// Session is one user's live presence. Stop is idempotent.
type Session struct {
	tracker *Tracker
	uid     string
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.done)
	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()
	lastSeen := time.NewTicker(lastSeenPeriod)
	defer lastSeen.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Re-announce rather than just EXPIRE: if the key was lost
			// (Redis restart, eviction) this makes the user online again,
			// which doubles as idempotent re-announcement on reconnect.
			if err := s.tracker.rdb.Set(ctx, userKey(s.uid), time.Now().Format(time.RFC3339), onlineTTL).Err(); err != nil {
				s.tracker.log.Warn().Err(err).Str("uid", s.uid).Msg("heartbeat failed")
			}
		case <-lastSeen.C:
			s.tracker.touchLastSeen(ctx, s.uid)
		}
	}
}

// Stop takes the user offline: deletes the key, publishes leave, and stamps
// a final last-seen.
func (s *Session) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.tracker.rdb.Del(ctx, userKey(s.uid)).Err(); err != nil {
			s.tracker.log.Warn().Err(err).Str("uid", s.uid).Msg("presence delete failed")
		}
		if err := publishEvent(ctx, s.tracker.rdb, eventLeave, s.uid); err != nil {
			s.tracker.log.Warn().Err(err).Str("uid", s.uid).Msg("publish leave failed")
		}
		s.tracker.touchLastSeen(ctx, s.uid)
		s.tracker.log.Debug().Str("uid", s.uid).Msg("tracking stopped")
	})
}
