// Command phoneauth-loadtest drives the OTP policy against a store under
// contention and checks that attempt counting and single use hold.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/phoneAuth/otp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type phoneState struct {
	phone string
	code  string
	valid atomic.Int64
}

func main() {
	var (
		phones      = flag.Int("phones", 10000, "number of phones to issue codes for")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "verify operations in the mismatch phase")
		racers      = flag.Int("racers", 8, "concurrent correct submissions per phone in the single-use phase")
		storeKind   = flag.String("store", "redis", "otp store: redis or memory")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "otp-lt", "redis key prefix")
	)
	flag.Parse()

	if *phones <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 0 {
		fmt.Fprintln(os.Stderr, "phones, concurrency, ops and racers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	store, cleanup, err := openStore(*storeKind, *redisAddr, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	// a long resend interval keeps the mismatch phase from racing reissues.
	policy, err := otp.NewPolicy(store, otp.Config{
		ResendInterval: time.Minute,
		CodeTTL:        10 * time.Minute,
		MaxAttempts:    5,
		LockDuration:   10 * time.Minute,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "policy: %v\n", err)
		os.Exit(1)
	}

	states := make([]*phoneState, *phones)
	fmt.Printf("issuing %d codes...\n", *phones)
	issueStats := issueAll(ctx, policy, states, *concurrency)

	mismatchStats, outcomes := verifyMismatch(ctx, policy, states, *ops, *concurrency)
	mismatchViolations := checkLockout(ctx, store, states, 5)

	// fresh codes for the single-use phase.
	for _, s := range states {
		_ = store.Delete(ctx, s.phone)
	}
	issueAll(ctx, policy, states, *concurrency)
	singleUseStats := verifySingleUse(ctx, policy, states, *racers, *concurrency)
	singleUseViolations := 0
	for _, s := range states {
		if s.valid.Load() != 1 {
			singleUseViolations++
		}
	}

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("verify-mismatch", mismatchStats)
	fmt.Printf("verify-mismatch outcomes: %v\n", outcomes)
	printStats("verify-single-use", singleUseStats)
	fmt.Printf("lockout violations=%d single-use violations=%d\n", mismatchViolations, singleUseViolations)

	if mismatchViolations > 0 || singleUseViolations > 0 {
		os.Exit(1)
	}
}

func openStore(kind, addr, prefix string) (otp.Store, func(), error) {
	if kind == "memory" {
		fmt.Println("using in-memory store")
		return otp.NewMemoryStore(), func() {}, nil
	}
	if kind != "redis" {
		return nil, nil, fmt.Errorf("unknown store %q", kind)
	}

	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return otp.NewRedisStore(client, prefix, otp.WithRedisRetries(64)), func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return otp.NewRedisStore(client, prefix, otp.WithRedisRetries(64)), func() { _ = client.Close() }, nil
}

// phase runs op for indexes [0, n) across workers goroutines. Each worker
// keeps its own samples so the hot loop takes no lock.
type phase struct {
	workers int
	n       int
}

func (p phase) run(op func(worker, i int) error) phaseStats {
	var (
		next     atomic.Int64
		failures atomic.Int64
		samples  = make([][]time.Duration, p.workers)
		g        errgroup.Group
	)
	start := time.Now()
	for w := range p.workers {
		g.Go(func() error {
			for {
				i := int(next.Add(1)) - 1
				if i >= p.n {
					return nil
				}
				t0 := time.Now()
				if err := op(w, i); err != nil {
					failures.Add(1)
				}
				samples[w] = append(samples[w], time.Since(t0))
			}
		})
	}
	_ = g.Wait()
	return computeStats(time.Since(start), slices.Concat(samples...), failures.Load())
}

func issueAll(ctx context.Context, policy *otp.Policy, states []*phoneState, workers int) phaseStats {
	return phase{workers: workers, n: len(states)}.run(func(_, i int) error {
		if states[i] == nil {
			states[i] = &phoneState{phone: fmt.Sprintf("+86138%08d", i)}
		}
		code, err := otp.NewCode(6)
		if err != nil {
			return err
		}
		states[i].code = code
		states[i].valid.Store(0)
		return policy.Issue(ctx, states[i].phone, code)
	})
}

// verifyMismatch hammers a small hot set of phones with wrong codes and
// tallies the outcomes.
func verifyMismatch(ctx context.Context, policy *otp.Policy, states []*phoneState, ops, workers int) (phaseStats, map[string]int64) {
	hot := min(len(states), 64)
	rngs := make([]*rand.Rand, workers)
	for w := range rngs {
		rngs[w] = rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)*7919))
	}

	var mu sync.Mutex
	outcomes := make(map[string]int64)
	stats := phase{workers: workers, n: ops}.run(func(w, _ int) error {
		s := states[rngs[w].Intn(hot)]
		res, err := policy.Verify(ctx, s.phone, wrong(s.code))
		if err != nil {
			return err
		}
		mu.Lock()
		outcomes[res.Outcome.String()]++
		mu.Unlock()
		return nil
	})
	return stats, outcomes
}

// verifySingleUse submits the correct code racers times concurrently for
// every phone.
func verifySingleUse(ctx context.Context, policy *otp.Policy, states []*phoneState, racers, workers int) phaseStats {
	return phase{workers: workers, n: len(states) * racers}.run(func(_, i int) error {
		s := states[i%len(states)]
		res, err := policy.Verify(ctx, s.phone, s.code)
		if err != nil {
			return err
		}
		if res.Outcome == otp.OutcomeValid {
			s.valid.Add(1)
		}
		return nil
	})
}

// checkLockout counts records whose attempt counter passed the maximum.
func checkLockout(ctx context.Context, store otp.Store, states []*phoneState, maxAttempts int) int {
	violations := 0
	for _, s := range states {
		rec, err := store.Get(ctx, s.phone)
		if err != nil {
			continue
		}
		if rec.Attempts > maxAttempts {
			violations++
		}
	}
	return violations
}

func wrong(code string) string {
	if code == "" {
		return "0"
	}
	b := []byte(code)
	b[0] = '0' + (b[0]-'0'+1)%10
	return string(b)
}

type phaseStats struct {
	elapsed  time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func computeStats(elapsed time.Duration, samples []time.Duration, failures int64) phaseStats {
	st := phaseStats{elapsed: elapsed, ops: len(samples), failures: failures}
	if len(samples) == 0 {
		return st
	}
	slices.Sort(samples)
	at := func(p int) time.Duration { return samples[(len(samples)-1)*p/100] }
	st.p50, st.p95, st.p99 = at(50), at(95), at(99)
	return st
}

func printStats(name string, s phaseStats) {
	rate := 0.0
	if s.elapsed > 0 {
		rate = float64(s.ops) / s.elapsed.Seconds()
	}
	fmt.Printf("%-18s ops=%d failures=%d elapsed=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures, s.elapsed.Round(time.Millisecond), rate,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}
