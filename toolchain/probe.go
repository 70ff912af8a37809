package toolchain

import (
	"context"
	"sync"
	"time"
)

type (
	// ProbeRequest fingerprints one external probe: a find_program
	// PATH search, a pkg-config dependency lookup, or a compiler
	// `--version` exec (spec §5).
	ProbeRequest struct {
		Tool        string
		Fingerprint string
	}

	ProbeResult struct {
		Found bool
		Path  string
		Value string
	}

	// ProbeCache is the append-only, mutex-guarded store threaded
	// probes write into. The CFG itself is only ever mutated after a
	// whole batch of probes has landed here, on the driver thread
	// (spec §5).
	ProbeCache struct {
		mu      sync.Mutex
		results map[ProbeRequest]ProbeResult
	}

	// Prober executes one probe. Production code wires this to a real
	// $PATH search / pkg-config exec / compiler invocation; tests wire
	// it to a fixed map.
	Prober func(ctx context.Context, req ProbeRequest) (ProbeResult, error)
)

// DefaultProbeTimeout is the per-probe timeout RunBatch applies to
// every probe. A caller's context deadline still applies when it is
// earlier; a caller cannot lengthen the timeout.
const DefaultProbeTimeout = 30 * time.Second

func NewProbeCache() *ProbeCache {
	return &ProbeCache{results: map[ProbeRequest]ProbeResult{}}
}

func (c *ProbeCache) Get(req ProbeRequest) (ProbeResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.results[req]

	return r, ok
}

func (c *ProbeCache) Put(req ProbeRequest, res ProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[req] = res
}

// RunBatch fans a set of independent probe requests out over a
// bounded worker pool and blocks until every one has either landed in
// the cache or failed. Each probe is independent by contract (spec
// §5); RunBatch itself never touches a CFG.
func RunBatch(ctx context.Context, cache *ProbeCache, probe Prober, reqs []ProbeRequest, workers int) error {
	if workers <= 0 {
		workers = 4
	}

	var pending []ProbeRequest

	for _, r := range reqs {
		if _, ok := cache.Get(r); !ok {
			pending = append(pending, r)
		}
	}

	if len(pending) == 0 {
		return nil
	}

	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup

	var firstErrMu sync.Mutex

	var firstErr error

	for _, req := range pending {
		req := req

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			pctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
			defer cancel()

			res, err := probe(pctx, req)
			if err != nil {
				firstErrMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				firstErrMu.Unlock()

				return
			}

			cache.Put(req, res)
		}()
	}

	wg.Wait()

	return firstErr
}
