package provider

import "context"

// Pool bounds the number of concurrently live provider instances.
// Workers check an instance out for the duration of one send and return it
// afterwards; when every instance is checked out, Get blocks.
type Pool struct {
	providers chan Provider
}

func NewPool(size int, factory Factory) *Pool {
	p := &Pool{providers: make(chan Provider, size)}
	for i := 0; i < size; i++ {
		p.providers <- factory()
	}
	return p
}

// Get checks a provider out, blocking until one is free or ctx is done.
func (p *Pool) Get(ctx context.Context) (Provider, error) {
	select {
	case prov := <-p.providers:
		return prov, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a provider to the pool. Must be called exactly once per Get.
func (p *Pool) Put(prov Provider) {
	p.providers <- prov
}
