package dedupe

type config struct {
	shards int
}

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*config)

// WithShards sets the number of lock shards. Values below 1 keep the default.
func WithShards(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.shards = n
		}
	}
}
