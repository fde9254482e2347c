// Package handlers contains the HTTP handlers served by the gateway itself.
// Every other route is delegated to the graph-builder backend through the
// modules registry.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"graphbuilder/internal/config"
	"graphbuilder/internal/core"
	"graphbuilder/internal/types"
)

// EnvDebugPath is the mount point of the environment debug endpoint.
const EnvDebugPath = "/__env_debug"

// debugTokenHeader carries the plaintext debug token checked against the
// configured bcrypt hash.
const debugTokenHeader = "X-Debug-Token"

// envDebugKeys is the fixed set of keys reported by the debug endpoint. No
// other configuration key is ever exposed.
var envDebugKeys = []string{
	"LLM_MODEL_CONFIG_ollama_llama2",
	"DEFAULT_DIFFBOT_CHAT_MODEL",
	"GRAPH_CLEANUP_MODEL",
	"OPENAI_API_KEY",
}

// EnvDebugHandler reports which model settings the process resolved at
// startup. Values are returned verbatim, so the route is only mounted when
// ENV_DEBUG_ENABLED is set.
type EnvDebugHandler struct {
	env       *config.Snapshot
	tokenHash types.SecretString
	logger    *slog.Logger
}

// NewEnvDebugHandler creates a handler reading from env. A nil env reports
// every key as null. When tokenHash is set, callers must present the
// matching token in X-Debug-Token.
func NewEnvDebugHandler(env *config.Snapshot, tokenHash types.SecretString, logger *slog.Logger) *EnvDebugHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvDebugHandler{
		env:       env,
		tokenHash: tokenHash,
		logger:    logger,
	}
}

// RegisterRoutes mounts GET /__env_debug.
func (h *EnvDebugHandler) RegisterRoutes(r chi.Router) {
	r.Get(EnvDebugPath, h.HandleEnvDebug)
}

// HandleEnvDebug handles GET /__env_debug. The response object always has
// exactly the four envDebugKeys; absent values are JSON null.
func (h *EnvDebugHandler) HandleEnvDebug(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		h.logger.Warn("env debug access denied",
			"remote_addr", r.RemoteAddr,
			"request_id", types.GetRequestID(r.Context()),
			"reason", string(err.Code),
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, h.snapshotValues())
}

func (h *EnvDebugHandler) snapshotValues() map[string]*string {
	out := make(map[string]*string, len(envDebugKeys))
	for _, key := range envDebugKeys {
		out[key] = h.env.Get(key)
	}
	return out
}

func (h *EnvDebugHandler) authorize(r *http.Request) *types.AppError {
	if !h.tokenHash.IsSet() {
		return nil
	}

	token := r.Header.Get(debugTokenHeader)
	if token == "" {
		return types.NewAppError(types.ErrCodeAuthTokenMissing, "X-Debug-Token header is required", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.tokenHash.Unmask()), []byte(token)); err != nil {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid debug token", nil)
	}
	return nil
}
