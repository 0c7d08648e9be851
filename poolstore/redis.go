package poolstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/mcache/internal/util"
	pr "github.com/unkn0wn-root/mcache/provider"
)

// Redis shares pool membership across processes and survives restarts.
// Each pool is a Redis list of "host:port#weight" members under pool:<ns>:<id>.
// Optionally, a TTL is refreshed on every Add so abandoned pools age out.
type Redis struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ PoolStore = (*Redis)(nil)

type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string        // logical namespace; e.g. "app:prod"
	TTL       time.Duration // 0 disables expiry
	// CloseClient set true only if this store exclusively owns the client.
	CloseClient bool
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("poolstore: nil redis client")
	}
	return &Redis{rdb: cfg.Client, ns: cfg.Namespace, ttl: cfg.TTL, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) key(id string) string { return "pool:" + s.ns + ":" + id }

func (s *Redis) Servers(ctx context.Context, id string) ([]pr.Server, error) {
	members, err := s.rdb.LRange(ctx, s.key(id), 0, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]pr.Server, 0, len(members))
	for _, m := range members {
		srv, err := decodeMember(m)
		if err != nil {
			return nil, fmt.Errorf("redis pool member %q: %w", m, err)
		}
		out = append(out, srv)
	}
	return out, nil
}

func (s *Redis) Add(ctx context.Context, id string, servers []pr.Server) error {
	if len(servers) == 0 {
		return nil
	}
	members := make([]any, len(servers))
	for i, srv := range servers {
		members[i] = encodeMember(srv)
	}
	k := s.key(id)
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, k, members...)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Redis) Reset(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// Close releases the underlying client only when this store owns it.
func (s *Redis) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && err != redis.ErrClosed {
		return err
	}
	return nil
}

func encodeMember(srv pr.Server) string {
	return util.HostPort(srv.Host, srv.Port) + "#" + strconv.Itoa(srv.Weight)
}

func decodeMember(m string) (pr.Server, error) {
	i := strings.LastIndex(m, "#")
	if i < 0 {
		return pr.Server{}, fmt.Errorf("missing weight")
	}
	weight, err := strconv.Atoi(m[i+1:])
	if err != nil {
		return pr.Server{}, err
	}
	host, port, _, err := util.SplitHostPortWeight(m[:i])
	if err != nil {
		return pr.Server{}, err
	}
	return pr.Server{Host: host, Port: port, Weight: weight}, nil
}
