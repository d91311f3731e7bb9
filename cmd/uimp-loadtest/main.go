package main

import (
	"context"
	"crypto/ed25519"
	crand "crypto/rand"
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

	"github.com/uimp/portalguard"
	"github.com/uimp/portalguard/role"
)

var samplePaths = []string{
	"/",
	"/about",
	"/login",
	"/dashboard",
	"/dashboard/user",
	"/dashboard/user/applications/42",
	"/dashboard/mentor/sessions",
	"/dashboard/admin/users",
	"/profile",
	"/settings/security",
	"/unknown/page",
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (verify + decide)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, UIMP_REDIS_ADDR env or miniredis is used")
		mode        = flag.String("mode", "strict", "validation mode: strict or jwt-only")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	validation, err := portalguard.ParseValidationMode(*mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("UIMP_REDIS_ADDR")
	}

	var (
		cleanup func()
		client  *redis.Client
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := newEngine(client, validation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	roles := role.All()
	tokens := make([]string, *sessions)
	fmt.Printf("issuing %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range tokens {
		r := roles[i%len(roles)]
		res, err := engine.Issue(ctx, portalguard.Identity{
			ID:    fmt.Sprintf("u-%d", i),
			Role:  r,
			Email: fmt.Sprintf("load-%d@uimp.test", i),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		tokens[i] = res.Token
	}
	fmt.Printf("issued in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verifyStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) bool {
		return engine.Verify(ctx, tokens[r.Intn(len(tokens))]).Valid
	})
	decideStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) bool {
		token := ""
		// One request in ten is anonymous.
		if r.Intn(10) != 0 {
			token = tokens[r.Intn(len(tokens))]
		}
		d := engine.Decide(ctx, samplePaths[r.Intn(len(samplePaths))], token)
		return d.Action == portalguard.ActionAllow || d.Location != ""
	})

	fmt.Println("---- results ----")
	printStats("verify", verifyStats)
	printStats("decide", decideStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("decisions: allow=%d login=%d dashboard=%d auth_page=%d\n",
		snap.Counters[portalguard.MetricDecisionAllow],
		snap.Counters[portalguard.MetricRedirectLogin],
		snap.Counters[portalguard.MetricRedirectDashboard],
		snap.Counters[portalguard.MetricRedirectAuthPage],
	)
}

func newEngine(client *redis.Client, mode portalguard.ValidationMode) (*portalguard.Engine, error) {
	pub, priv, err := ed25519.GenerateKey(crand.Reader)
	if err != nil {
		return nil, err
	}
	cfg := portalguard.DefaultConfig()
	cfg.JWT.PublicKey = pub
	cfg.JWT.PrivateKey = priv
	cfg.ValidationMode = mode
	cfg.RateLimit.Enabled = false
	return portalguard.New().WithConfig(cfg).WithRedis(client).Build()
}

// runPhase spreads ops calls of op over concurrency workers. op reports
// whether the call succeeded.
func runPhase(ops, concurrency int, seedStep int64, op func(*rand.Rand) bool) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStep))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				ok := op(r)
				d := time.Since(t0)
				if !ok {
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
