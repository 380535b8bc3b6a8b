package resource

import "github.com/Carmen-Shannon/oxy-gpu/engine/renderer/device"

// Sampler is a handle to a pool-owned sampler. The zero Sampler is invalid.
type Sampler struct {
	id   ID
	pool *pool
}

// ID returns the slot ID of the sampler.
func (s Sampler) ID() ID {
	return s.id
}

// Valid reports whether the sampler is still alive.
func (s Sampler) Valid() bool {
	return s.Native() != nil
}

// Native returns the native sampler, or nil for a stale handle.
func (s Sampler) Native() device.Sampler {
	if s.pool == nil {
		return nil
	}
	if r, ok := s.pool.samplers.Get(s.id); ok {
		return r.native
	}
	return nil
}

// Release frees the sampler. Releasing a stale handle is a no-op.
func (s Sampler) Release() {
	if s.pool == nil {
		return
	}
	if r, ok := s.pool.samplers.Remove(s.id); ok {
		r.native.Release()
	}
}
