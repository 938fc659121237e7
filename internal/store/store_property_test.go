package store

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/EbubeImoh/AI-Powered-Trading-Journal-Agent/internal/models"
)

// A value written in any turn survives later turns that leave it unset,
// across a persist and reload on every turn.
func TestProperty_MergeSurvivesPersistence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	clock := newTestClock()
	redisStore, _ := newRedisForTest(t, clock)
	stores := map[string]SessionStore{
		"sqlite": newSQLiteForTest(t, clock),
		"memory": newMemoryForTest(t, clock),
		"redis":  redisStore,
	}

	for name, s := range stores {
		s := s
		properties.Property(name+" keeps the last non-blank ticker", prop.ForAll(
			func(tickers []string) bool {
				ctx := context.Background()
				session, err := s.Create(ctx, "prop-user", Turn{Message: "start", MissingFields: []string{"ticker"}})
				if err != nil {
					t.Logf("create: %v", err)
					return false
				}
				defer s.Delete(ctx, session.SessionID())

				want := ""
				for _, ticker := range tickers {
					turn := Turn{Message: ticker, MissingFields: []string{"pnl"}}
					if ticker != "" {
						turn.Structured.Ticker = models.Some(ticker)
						want = ticker
					}
					if _, err := s.Update(ctx, session.SessionID(), turn); err != nil {
						t.Logf("update: %v", err)
						return false
					}
				}

				got, err := s.Get(ctx, session.SessionID())
				if err != nil {
					t.Logf("get: %v", err)
					return false
				}
				if want == "" {
					return got.Structured().Ticker.IsUnset()
				}
				return got.Structured().Ticker.OrZero() == want
			},
			gen.SliceOf(gen.OneConstOf("", "AAPL", "MSFT", "TSLA", "NVDA")),
		))
	}

	properties.TestingRun(t)
}

// Only sessions idle for longer than the TTL disappear.
func TestProperty_ExpiryHonoursTTL(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("memory sessions live exactly while within the TTL", prop.ForAll(
		func(ages []int) bool {
			clock := newTestClock()
			s := NewMemoryStore(Options{TTL: 15 * time.Minute, Now: clock.Now, NewID: sequentialIDs()})
			defer s.Close()
			ctx := context.Background()

			// Ages are minutes before the final clock reading; sessions are
			// created oldest first.
			final := clock.Now().Add(time.Hour)
			sort.Sort(sort.Reverse(sort.IntSlice(ages)))
			ids := make([]string, len(ages))
			for i, age := range ages {
				clock.Advance(final.Add(-time.Duration(age) * time.Minute).Sub(clock.Now()))
				session, err := s.Create(ctx, "u1", Turn{Message: "m"})
				if err != nil {
					return false
				}
				ids[i] = session.SessionID()
			}
			clock.Advance(final.Sub(clock.Now()))

			for i, id := range ids {
				_, err := s.Get(ctx, id)
				if alive := err == nil; alive != (ages[i] <= 15) {
					t.Logf("session aged %dm alive=%v", ages[i], alive)
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 40)),
	))

	properties.TestingRun(t)
}
