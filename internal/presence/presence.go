// Package presence tracks which users are currently connected. Each online
// user holds a Redis key with a TTL that their session heartbeat refreshes;
// join/leave transitions are published on a single pub/sub channel that
// server-side observers consume. A dropped connection simply stops
// heartbeating and ages out.
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "presence:user:"
	eventsChannel = "presence:events"

	onlineTTL       = 90 * time.Second
	heartbeatPeriod = 30 * time.Second
	lastSeenPeriod  = 60 * time.Second
	resyncPeriod    = 60 * time.Second
)

const (
	eventJoin  = "join"
	eventLeave = "leave"
)

type event struct {
	Type string    `json:"type"`
	UID  string    `json:"uid"`
	At   time.Time `json:"at"`
}

func userKey(uid string) string {
	return keyPrefix + uid
}

func publishEvent(ctx context.Context, rdb *redis.Client, typ, uid string) error {
	payload, err := json.Marshal(event{Type: typ, UID: uid, At: time.Now()})
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, eventsChannel, payload).Err()
}

// Query answers "which of these users are online right now" with one
// pipelined round trip. An empty input returns an empty map without
// touching Redis.
func Query(ctx context.Context, rdb *redis.Client, uids []string) (map[string]bool, error) {
	online := make(map[string]bool, len(uids))
	if len(uids) == 0 {
		return online, nil
	}
	pipe := rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(uids))
	for i, uid := range uids {
		cmds[i] = pipe.Exists(ctx, userKey(uid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	for i, uid := range uids {
		online[uid] = cmds[i].Val() > 0
	}
	return online, nil
}
