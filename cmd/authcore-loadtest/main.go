// Command authcore-loadtest measures access-token verification and refresh
// rotation throughput against a Redis refresh store.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/refresh"
)

// userState is one seeded account. refreshToken always holds the newest
// token of the user's rotation chain.
type userState struct {
	userID       string
	accessToken  string
	refreshToken string
	mu           sync.Mutex
}

func main() {
	var (
		users       = flag.Int("users", 10000, "number of users to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (authenticate + rotate)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "authcore-lt", "refresh key prefix")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	store, err := refresh.NewRedisStore(client, *prefix, refresh.Options{TTL: 24 * time.Hour})
	if err != nil {
		fmt.Fprintf(os.Stderr, "refresh store: %v\n", err)
		os.Exit(1)
	}
	codec, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("loadtest-secret-loadtest-secret-0"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "token codec: %v\n", err)
		os.Exit(1)
	}

	states := make([]userState, *users)
	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	for i := range states {
		userID := fmt.Sprintf("user-%d", i)
		now := time.Now()
		issued, err := store.Create(ctx, userID, now, refresh.Client{UserAgent: "authcore-loadtest"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "create failed: %v\n", err)
			os.Exit(1)
		}
		access, _, err := codec.IssueAccess(userID, permission.RoleUser, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		states[i].userID = userID
		states[i].accessToken = access
		states[i].refreshToken = issued.Token
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(states, *ops, *concurrency, 7919, func(s *userState) error {
		_, err := codec.VerifyAccess(s.accessToken, time.Now())
		return err
	})
	rotateStats := runPhase(states, *ops, *concurrency, 6151, func(s *userState) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, next, err := store.Rotate(ctx, s.refreshToken, time.Now(), refresh.Client{UserAgent: "authcore-loadtest"})
		if err != nil {
			return err
		}
		s.refreshToken = next.Token
		return nil
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("rotate", rotateStats)
}

// runPhase runs ops calls of op spread over concurrency workers, each call
// against a random user.
func runPhase(states []userState, ops, concurrency int, seed int64, op func(*userState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				state := &states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(state)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
