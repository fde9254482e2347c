package config

import "context"

// SecretProvider resolves secret pointers (SSM parameter paths or equivalent
// identifiers) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns key -> plaintext for every key it could
	// resolve. Keys it cannot resolve are omitted from the map.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
