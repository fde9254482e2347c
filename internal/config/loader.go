// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone.
//  2. Snapshot the process environment.
//  3. Locate the dotenv file (DOTENV_PATH, else search upward for .env).
//  4. Initial load: merge the file without override.
//  5. If APP_ENV != "local", resolve _SSM_PARAM pointers via the SecretProvider.
//  6. Override reload: merge the file again, file values winning.
//  7. Publish the merged snapshot to the process environment.
//  8. Populate Config via envconfig, attach the snapshot and BuildInfo.
//  9. Validate with go-playground/validator.
package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ssmParamSuffix marks SSM pointer variables: OPENAI_API_KEY_SSM_PARAM holds
// the parameter path whose value becomes OPENAI_API_KEY.
const ssmParamSuffix = "_SSM_PARAM"

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// llmModelConfigPrefix prefixes per-model LLM configuration entries.
const llmModelConfigPrefix = "LLM_MODEL_CONFIG_"

// loaderDeps holds the injectable OS dependencies of the loader.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	getwd     func() (string, error)
	stat      func(name string) (fs.FileInfo, error)
}

// defaultDeps returns the standard OS-backed dependencies.
func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		getwd:     os.Getwd,
		stat:      os.Stat,
	}
}

// LoadConfig loads and validates the gateway configuration.
//
// The provider resolves _SSM_PARAM pointers outside local mode. It may be nil
// when no pointer variables are present.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

// ProviderSelector picks a SecretProvider from configuration values. lookup
// reads the snapshot after the initial dotenv load, so selector keys such as
// SECRET_PROVIDER and AWS_REGION may come from the dotenv file.
type ProviderSelector func(lookup func(key string) string) SecretProvider

// LoadConfigSelecting is LoadConfig with the SecretProvider chosen by sel. sel
// is only called when pointer variables need resolving.
func LoadConfigSelecting(sel ProviderSelector) (*Config, error) {
	return loadConfigSelecting(sel, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	return loadConfigSelecting(func(func(string) string) SecretProvider { return provider }, deps)
}

func loadConfigSelecting(sel ProviderSelector, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	snap, err := buildSnapshot(sel, deps)
	if err != nil {
		return nil, err
	}

	if err := publish(snap, deps); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Env = snap
	cfg.LLM.Models = modelConfigs(snap)
	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := checkDebugExposure(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// buildSnapshot layers the configuration sources. The dotenv file is applied
// twice: first without override so the process environment wins, then as an
// override reload so the file has the final word.
func buildSnapshot(sel ProviderSelector, deps loaderDeps) (*Snapshot, error) {
	snap := snapshotFromEnviron(deps.environ())

	path, found, err := resolveDotenvPath(deps)
	if err != nil {
		return nil, err
	}

	fileValues := map[string]string{}
	if found {
		fileValues, err = readDotenv(path)
		if err != nil {
			return nil, err
		}
	}

	snap.merge(fileValues, false)

	if appEnv, _ := snap.Lookup("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(sel, snap); err != nil {
			return nil, err
		}
	}

	snap.merge(fileValues, true)

	return snap, nil
}

// publish writes snapshot entries that differ from the process environment
// back into it. This is the single write to process state; it happens before
// the server accepts requests.
func publish(snap *Snapshot, deps loaderDeps) error {
	for _, key := range snap.Keys() {
		value, _ := snap.Lookup(key)
		if cur, ok := deps.lookupEnv(key); ok && cur == value {
			continue
		}
		if err := deps.setEnv(key, value); err != nil {
			return &ConfigError{
				Type:    ErrParsing,
				Message: fmt.Sprintf("failed to publish %s", key),
				Err:     err,
			}
		}
	}
	return nil
}

// modelConfigs collects LLM_MODEL_CONFIG_<name> entries.
func modelConfigs(snap *Snapshot) map[string]SecretString {
	raw := snap.WithPrefix(llmModelConfigPrefix)
	models := make(map[string]SecretString, len(raw))
	for name, value := range raw {
		models[name] = SecretString(value)
	}
	return models
}

// checkDebugExposure refuses to start a production process that would serve
// the environment debug endpoint without a token guard.
func checkDebugExposure(cfg *Config) error {
	if cfg.Environment == "prod" && cfg.Debug.EnvDebugEnabled && !cfg.Debug.TokenHash.IsSet() {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "ENV_DEBUG_ENABLED requires ENV_DEBUG_TOKEN_HASH when APP_ENV=prod",
		}
	}
	return nil
}

// resolveSSMParams scans the snapshot for _SSM_PARAM pointers, fetches the
// referenced values in one batch and stores them under the target key.
//
// Targets that are already set are skipped, so a directly provided value
// always beats its SSM pointer.
func resolveSSMParams(sel ProviderSelector, snap *Snapshot) error {
	pathToTarget := make(map[string]string)
	var paths []string
	var targets []string

	for _, key := range snap.Keys() {
		target, ok := strings.CutSuffix(key, ssmParamSuffix)
		if !ok || target == "" {
			continue
		}
		if _, exists := snap.Lookup(target); exists {
			continue
		}
		ssmPath, _ := snap.Lookup(key)
		if ssmPath == "" {
			continue
		}
		pathToTarget[ssmPath] = target
		paths = append(paths, ssmPath)
		targets = append(targets, target)
	}

	if len(paths) == 0 {
		return nil
	}

	var provider SecretProvider
	if sel != nil {
		provider = sel(func(key string) string {
			v, _ := snap.Lookup(key)
			return v
		})
	}
	if provider == nil {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: fmt.Sprintf("SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", ")),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, p := range paths {
		value, ok := resolved[p]
		if !ok {
			missing = append(missing, pathToTarget[p])
			continue
		}
		snap.set(pathToTarget[p], value)
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("SSM parameters not found for: %s", strings.Join(missing, ", ")),
		}
	}

	return nil
}
