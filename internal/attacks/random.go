package attacks

import (
	"context"
	"math/rand"
	"time"
)

type RandomConfig struct {
	Charset   string
	MinLength int
	MaxLength int
	// Seed of zero seeds from the clock.
	Seed int64
	// Limit stops the generator after that many candidates; zero runs until
	// ctx is done.
	Limit uint64
}

func RandomGenerator(ctx context.Context, config RandomConfig) <-chan string {
	ch := make(chan string, 10000)

	go func() {
		defer close(ch)

		charset, minLen, maxLen := IncrementalConfig{
			Charset:   config.Charset,
			MinLength: config.MinLength,
			MaxLength: config.MaxLength,
		}.normalize()

		seed := config.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))

		password := make([]byte, maxLen)
		for n := uint64(0); config.Limit == 0 || n < config.Limit; n++ {
			length := minLen + rng.Intn(maxLen-minLen+1)
			for i := 0; i < length; i++ {
				password[i] = charset[rng.Intn(len(charset))]
			}

			select {
			case <-ctx.Done():
				return
			case ch <- string(password[:length]):
			}
		}
	}()

	return ch
}
