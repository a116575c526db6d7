package types

// ChatRequest is the input of a chat completion.
type ChatRequest struct {
	// Ordered conversation turns.
	Turns []ConversationTurn `json:"turns"`
	// Optional system instruction emitted before all turns.
	SystemInstruction *string `json:"system_instruction,omitempty"`
	// Sampling temperature; 0 selects greedy decoding. Defaults to 0.7.
	Temperature *float32 `json:"temperature,omitempty"`
	// Upper bound on generated tokens. Defaults to 512.
	MaxTokens *uint32 `json:"max_tokens,omitempty"`
}

// ChatResponse is the result of a chat completion.
type ChatResponse struct {
	// Generated assistant text, trimmed.
	Content string `json:"content"`
	// Display name of the model that produced the text.
	ModelName string `json:"model_name"`
	// Always true for a returned response.
	Done bool `json:"done"`
	// Number of tokens appended to the output.
	TokensGenerated uint32 `json:"tokens_generated"`
	// Number of prompt tokens processed during prefill.
	PromptTokens uint32 `json:"prompt_tokens"`
	// "stop" when an end-of-generation token was sampled, "length" when max_tokens was hit.
	FinishReason string `json:"finish_reason"`
}

// HealthResponse reports whether the on-device model is usable.
type HealthResponse struct {
	Available bool   `json:"available"`
	ModelName string `json:"model_name,omitempty"`
	Error     string `json:"error,omitempty"`
	// Always true: inference never leaves the process.
	IsOnDevice bool `json:"is_on_device"`
}

// PreloadResponse confirms that the model is resident.
type PreloadResponse struct {
	Message string `json:"message"`
}

// StatusResponse is a read-only view of the engine. Building it never loads the model.
type StatusResponse struct {
	// Lifecycle state: unloaded, loading, ready or error.
	State string `json:"state"`
	// Display name of the loaded model, if any.
	ModelName string `json:"model_name,omitempty"`
	// Path of the loaded model, if any.
	ModelPath string `json:"model_path,omitempty"`
	// Size of the loaded model file in bytes.
	ModelSizeBytes int64 `json:"model_size_bytes,omitempty"`
	// Last load error observed by the manager.
	LastError string `json:"last_error,omitempty"`
	// Load attempts since start.
	LoadAttempts uint64 `json:"load_attempts"`
	// Whether a generation currently holds the model.
	Busy bool `json:"busy"`
	// Configured context window in tokens.
	ContextSize int `json:"context_size"`
	// Host memory, zero when unavailable.
	MemTotalBytes     uint64 `json:"mem_total_bytes,omitempty"`
	MemAvailableBytes uint64 `json:"mem_available_bytes,omitempty"`
	// Process uptime in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// ModelsResponse lists model artifacts visible to the locator.
type ModelsResponse struct {
	Models []ModelEntry `json:"models"`
}

// ErrorResponse is the consistent error payload used by the host bridge.
type ErrorResponse struct {
	Error string `json:"error"`
	// Error kind, e.g. model_not_found.
	Kind string `json:"kind,omitempty"`
}
