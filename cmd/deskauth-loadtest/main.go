// Command deskauth-loadtest drives concurrent sign-ins against one engine
// and checks that single-session enforcement leaves exactly one live
// session per identity, then measures validation latency.
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

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/internal"
	"github.com/MrEthical07/deskauth/internal/logging"
	"github.com/MrEthical07/deskauth/password"
	"github.com/MrEthical07/deskauth/session"
	"github.com/MrEthical07/deskauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const secret = "loadtest-secret"

func main() {
	var (
		identities  = flag.Int("identities", 500, "number of identities to seed")
		logins      = flag.Int("logins", 4, "concurrent sign-ins per identity")
		concurrency = flag.Int("concurrency", 64, "worker limit")
		validations = flag.Int("validations", 50000, "validations in the latency phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, DESKAUTH_REDIS_ADDR or miniredis is used")
		prefix      = flag.String("prefix", "da-load", "session key prefix")
		logLevel    = flag.String("log-level", "warn", "engine log level")
	)
	flag.Parse()

	if *identities <= 0 || *logins <= 0 || *concurrency <= 0 || *validations <= 0 {
		fmt.Fprintln(os.Stderr, "identities, logins, concurrency and validations must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	log := logging.New(*logLevel, "console", os.Stderr)

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("DESKAUTH_REDIS_ADDR")
	}

	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()
	sessions := session.NewStore(client, *prefix)

	cfg := deskauth.DefaultConfig()
	// Cheap parameters: the run measures the session path, not Argon2.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.UpgradeOnLogin = false

	hasher, err := password.NewMulti(cfg.Password.Params())
	if err != nil {
		fmt.Fprintf(os.Stderr, "hasher: %v\n", err)
		os.Exit(1)
	}
	hash, err := hasher.Hash(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}

	store := memory.NewIdentityStore()
	seeded := make([]deskauth.Identity, 0, *identities)
	namespaces := deskauth.Namespaces()
	for i := 0; i < *identities; i++ {
		ns := namespaces[i%len(namespaces)]
		tenant := ""
		if ns == deskauth.NamespaceContext {
			tenant = "t-load"
		}
		ident, err := store.Put(deskauth.Identity{
			Namespace:  ns,
			Email:      fmt.Sprintf("user%d@load.test", i),
			Role:       "user",
			SecretHash: hash,
			Active:     true,
			TenantID:   tenant,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed: %v\n", err)
			os.Exit(1)
		}
		seeded = append(seeded, ident)
	}

	engine, err := deskauth.New().
		WithConfig(cfg).
		WithIdentityStore(store).
		WithSessionStore(sessions).
		WithHasher(hasher).
		WithLogger(log).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	issued, loginStats := runLoginPhase(ctx, engine, seeded, *logins, *concurrency)
	tokens, violations := liveTokens(ctx, sessions, seeded, issued)
	if len(tokens) == 0 {
		fmt.Fprintln(os.Stderr, "no live sessions after the login phase")
		os.Exit(1)
	}
	validateStats := runValidatePhase(ctx, engine, tokens, *validations, *concurrency)

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	fmt.Printf("single-session violations: %d of %d identities\n", violations, len(seeded))
	if violations > 0 {
		os.Exit(1)
	}
}

// runLoginPhase signs every identity in logins times concurrently. It
// returns every issued token keyed by its session digest; which of them
// survived is only known once the store is asked.
func runLoginPhase(ctx context.Context, engine *deskauth.Engine, idents []deskauth.Identity, logins, concurrency int) (map[string]string, phaseStats) {
	var (
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, len(idents)*logins)
		issued    = make(map[string]string, len(idents)*logins)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	start := time.Now()
	for _, ident := range idents {
		for n := 0; n < logins; n++ {
			g.Go(func() error {
				t0 := time.Now()
				res, err := engine.Login(gctx, ident.Email, secret, ident.Namespace)
				d := time.Since(t0)

				mu.Lock()
				latencies = append(latencies, d)
				if err == nil {
					issued[internal.TokenDigest(res.Session.Token)] = res.Session.Token
				}
				mu.Unlock()

				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return issued, computeStats(time.Since(start), latencies, failures)
}

// liveTokens asks the store which session survived for each identity and
// returns that session's token. An identity without exactly one live
// session, or whose live session was not issued by this run, counts as a
// violation.
func liveTokens(ctx context.Context, sessions *session.Store, idents []deskauth.Identity, issued map[string]string) ([]string, int) {
	tokens := make([]string, 0, len(idents))
	violations := 0
	for _, ident := range idents {
		digests, err := sessions.ActiveDigests(ctx, string(ident.Namespace), ident.ID)
		if err != nil || len(digests) != 1 {
			violations++
			continue
		}
		tok, ok := issued[digests[0]]
		if !ok {
			violations++
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens, violations
}

// runValidatePhase validates random live tokens; every one should be Valid.
func runValidatePhase(ctx context.Context, engine *deskauth.Engine, tokens []string, ops, concurrency int) phaseStats {
	var (
		cursor    int64
		failures  int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, ops)
	)
	if len(tokens) == 0 {
		return computeStats(0, latencies, 0)
	}

	var g errgroup.Group
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return nil
				}
				t0 := time.Now()
				res := engine.ValidateSession(ctx, tokens[r.Intn(len(tokens))])
				d := time.Since(t0)
				if !res.Valid() {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
		return phaseStats{total: total, failures: failures}
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

func percentile(sorted []time.Duration, p int) time.Duration {
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	return sorted[(len(sorted)-1)*p/100]
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
