package types

import "context"

// Loader is the contract between the cache and the authoritative data source.
type Loader interface {

	/*
		Load is called when no tier holds a valid entry for the key.

		1. Cache checks fast → medium → slow tier → nothing found
		2. Cache calls Load(key)
		3. Loader fetches from the remote API
		4. Cache fans the result out to every tier
		5. Cache returns the value

		A Load error means "no fresh data". The cache falls back to stale
		data when it has some and only returns the error when it does not.
	*/
	Load(ctx context.Context, key string) (any, error)
}

// LoaderFunc adapts an ordinary function to the Loader interface.
type LoaderFunc func(ctx context.Context, key string) (any, error)

// Load calls f(ctx, key).
func (f LoaderFunc) Load(ctx context.Context, key string) (any, error) {
	return f(ctx, key)
}
