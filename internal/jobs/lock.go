package job

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards work on one key across every running instance.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by another instance is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	token  func() string
}

func NewRedisLocker(client redis.UniversalClient, token func() string) *RedisLocker {
	return &RedisLocker{client: client, prefix: "crosspost:lock:", token: token}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := l.prefix + key
	token := l.token()
	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func() {
		// the job context may be done by now
		releaseScript.Run(context.Background(), l.client, []string{k}, token)
	}, true, nil
}
