package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harlan/vesper/internal/metrics"
	"github.com/harlan/vesper/internal/tracing"
	"github.com/harlan/vesper/pkg/commandqueue"
	"github.com/harlan/vesper/pkg/session"
	"github.com/harlan/vesper/pkg/toolexecutor"
)

const defaultToolTimeout = 30 * time.Second

// Runner orchestrates LLM agent execution over the registered tools
type Runner struct {
	transcripts     *session.Store
	toolExecutor    *toolexecutor.ToolExecutor
	queue           *commandqueue.Queue
	metrics         *metrics.Metrics
	logger          zerolog.Logger
	providerFactory ProviderCreator

	// Auth profiles
	authProfiles []AuthProfile
	authMu       sync.RWMutex

	// Active runs for abort capability
	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// Config holds runner configuration
type Config struct {
	Transcripts     *session.Store
	ToolExecutor    *toolexecutor.ToolExecutor
	Queue           *commandqueue.Queue
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
	AuthProfiles    []AuthProfile
	ProviderFactory ProviderCreator
}

// ProviderCreator creates LLM providers from auth profiles.
type ProviderCreator interface {
	NewProvider(profile AuthProfile) (LLMProvider, error)
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Transcripts == nil {
		return nil, fmt.Errorf("transcript store is required")
	}
	if cfg.ToolExecutor == nil {
		return nil, fmt.Errorf("tool executor is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if len(cfg.AuthProfiles) == 0 {
		return nil, fmt.Errorf("at least one auth profile is required")
	}

	providerFactory := cfg.ProviderFactory
	if providerFactory == nil {
		providerFactory = &ProviderFactory{}
	}

	return &Runner{
		transcripts:     cfg.Transcripts,
		toolExecutor:    cfg.ToolExecutor,
		queue:           cfg.Queue,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		providerFactory: providerFactory,
		authProfiles:    cfg.AuthProfiles,
		activeRuns:      make(map[string]context.CancelFunc),
	}, nil
}

// Run executes an agent run. Runs that share a session key are serialized
// on the same queue lane.
func (r *Runner) Run(ctx context.Context, params RunParams) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx = tracing.NewAgentRunContext(ctx)
	ctx = tracing.WithSessionKey(ctx, params.SessionKey)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	if err := r.validateConfig(params.Config); err != nil {
		return RunResult{}, fmt.Errorf("invalid configuration: %w", err)
	}

	lane := fmt.Sprintf("session-%s", params.SessionKey)

	result, err := r.queue.Enqueue(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		return r.executeAgent(taskCtx, params)
	}, &commandqueue.TaskOptions{RequestID: params.RequestID})

	if err != nil {
		logger.Error().Err(err).Msg("Agent run failed")
		return RunResult{}, err
	}

	return result.(RunResult), nil
}

// Abort cancels a running agent execution
func (r *Runner) Abort(sessionKey string) error {
	r.runsMu.Lock()
	defer r.runsMu.Unlock()

	cancel, exists := r.activeRuns[sessionKey]
	if !exists {
		r.logger.Debug().Str("session_key", sessionKey).Msg("No active run to abort")
		return nil
	}

	r.logger.Info().Str("session_key", sessionKey).Msg("Aborting agent execution")
	cancel()
	delete(r.activeRuns, sessionKey)

	return nil
}

// IsRunning checks if an agent is currently running for a session
func (r *Runner) IsRunning(sessionKey string) bool {
	r.runsMu.RLock()
	defer r.runsMu.RUnlock()

	_, exists := r.activeRuns[sessionKey]
	return exists
}

// executeAgent performs the actual agent execution
func (r *Runner) executeAgent(ctx context.Context, params RunParams) (RunResult, error) {
	ctx = tracing.WithSessionKey(ctx, params.SessionKey)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.runsMu.Lock()
	r.activeRuns[params.SessionKey] = cancel
	r.runsMu.Unlock()

	defer func() {
		r.runsMu.Lock()
		delete(r.activeRuns, params.SessionKey)
		r.runsMu.Unlock()
	}()

	start := time.Now()

	result, err := r.executeTurns(execCtx, params, logger)

	status := "success"
	switch {
	case err != nil:
		status = "failure"
	case result.Aborted:
		status = "aborted"
	}
	if r.metrics != nil {
		r.metrics.AgentRunsTotal.WithLabelValues(status).Inc()
		r.metrics.AgentRunDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		return RunResult{}, err
	}

	result.SessionKey = params.SessionKey
	return result, nil
}

func (r *Runner) executeTurns(ctx context.Context, params RunParams, logger zerolog.Logger) (RunResult, error) {
	select {
	case <-ctx.Done():
		return RunResult{Aborted: true}, nil
	default:
	}

	history, err := r.loadHistory(ctx, params.SessionKey)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load session history")
		return RunResult{}, fmt.Errorf("failed to load session history: %w", err)
	}

	messages := r.buildMessages(history, params)

	if err := r.transcripts.Append(ctx, params.SessionKey, session.Message{
		Role:    "user",
		Content: params.Prompt,
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to persist user message")
		return RunResult{}, fmt.Errorf("failed to save user message: %w", err)
	}

	result, err := r.executeWithFailover(ctx, messages, params)
	if err != nil {
		return RunResult{}, err
	}
	if result.Aborted {
		return result, nil
	}

	if err := r.transcripts.Append(ctx, params.SessionKey, session.Message{
		Role:    "assistant",
		Content: result.Response,
		Metadata: map[string]interface{}{
			"model": params.Config.Model,
			"usage": result.Usage,
		},
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to persist assistant message")
		return RunResult{}, fmt.Errorf("failed to save assistant message: %w", err)
	}

	return result, nil
}

// validateConfig validates agent configuration
func (r *Runner) validateConfig(config AgentConfig) error {
	if config.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	if config.MaxTurns < 0 {
		return fmt.Errorf("max turns cannot be negative")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// loadHistory loads prior conversation turns for the session
func (r *Runner) loadHistory(ctx context.Context, sessionKey string) ([]session.Entry, error) {
	return r.transcripts.Load(ctx, sessionKey)
}

// buildMessages constructs the message array for the provider
func (r *Runner) buildMessages(history []session.Entry, params RunParams) []Message {
	systemPrompt := params.Config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "You are a command execution assistant with access to a persistent shell session."
	}

	messages := []Message{{
		Role:    "system",
		Content: systemPrompt,
	}}

	for _, entry := range history {
		messages = append(messages, Message{
			Role:    entry.Message.Role,
			Content: entry.Message.Content,
		})
	}

	messages = append(messages, Message{
		Role:    "user",
		Content: params.Prompt,
	})

	return r.compactIfNeeded(messages, params.Config.MaxTokens)
}

// compactIfNeeded compacts messages if they exceed the token budget
func (r *Runner) compactIfNeeded(messages []Message, maxTokens int) []Message {
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	tokenCount := EstimateTokens(messages)
	if tokenCount <= maxTokens {
		return messages
	}

	r.logger.Info().
		Int("token_count", tokenCount).
		Int("max_tokens", maxTokens).
		Msg("Compacting context")

	systemMessages := []Message{}
	conversationMessages := []Message{}

	for _, msg := range messages {
		if msg.Role == "system" {
			systemMessages = append(systemMessages, msg)
		} else {
			conversationMessages = append(conversationMessages, msg)
		}
	}

	// Keep the newest 20 turns and summarize the rest away
	recentCount := 20
	if len(conversationMessages) <= recentCount {
		return messages
	}

	recentMessages := conversationMessages[len(conversationMessages)-recentCount:]
	olderCount := len(conversationMessages) - recentCount

	summary := Message{
		Role:    "system",
		Content: fmt.Sprintf("[Previous conversation summary: %d messages exchanged]", olderCount),
	}

	result := append(systemMessages, summary)
	result = append(result, recentMessages...)

	return result
}

// buildToolSpecs declares every registered tool to the provider
func (r *Runner) buildToolSpecs() []ToolSpec {
	defs := r.toolExecutor.ListTools()
	if len(defs) == 0 {
		return nil
	}

	specs := make([]ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	return specs
}

// executeWithFailover executes with auth profile failover
func (r *Runner) executeWithFailover(ctx context.Context, messages []Message, params RunParams) (RunResult, error) {
	r.authMu.RLock()
	profiles := make([]AuthProfile, len(r.authProfiles))
	copy(profiles, r.authProfiles)
	r.authMu.RUnlock()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	sortProfilesByPriority(profiles)

	tools := r.buildToolSpecs()

	var lastErr error

	for _, profile := range profiles {
		// Skip profiles in cooldown
		if profile.CooldownUntil != nil && time.Now().UnixMilli() < *profile.CooldownUntil {
			logger.Debug().
				Str("profile_id", profile.ID).
				Msg("Skipping profile in cooldown")
			continue
		}

		logger.Debug().Str("profile_id", profile.ID).Msg("Trying auth profile")

		provider, err := r.providerFactory.NewProvider(profile)
		if err != nil {
			logger.Warn().
				Str("profile_id", profile.ID).
				Err(err).
				Msg("Failed to create provider")
			continue
		}

		result, err := r.executeWithTools(ctx, provider, messages, tools, params)
		if err == nil {
			r.updateProfileSuccess(profile.ID)
			return result, nil
		}

		lastErr = err
		logger.Warn().
			Str("profile_id", profile.ID).
			Err(err).
			Msg("Auth profile failed")

		r.updateProfileFailure(profile.ID)

		// Don't fail over on permanent errors
		if !IsRetryableError(err) {
			return RunResult{}, err
		}
	}

	if lastErr != nil {
		logger.Error().Err(lastErr).Msg("All auth profiles failed")
	}
	return RunResult{}, fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// executeWithTools handles the tool execution loop
func (r *Runner) executeWithTools(ctx context.Context, provider LLMProvider, messages []Message, tools []ToolSpec, params RunParams) (RunResult, error) {
	currentMessages := messages
	allToolCalls := []ToolCall{}

	systemPrompt := ""
	for _, msg := range messages {
		if msg.Role == "system" {
			systemPrompt = msg.Content
			break
		}
	}

	maxTurns := params.Config.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultConfig().MaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return RunResult{Aborted: true}, nil
		default:
		}

		if r.metrics != nil {
			r.metrics.AgentTurnsTotal.Inc()
		}

		response, err := r.callLLMWithRetry(ctx, provider, currentMessages, tools, systemPrompt, params)
		if err != nil {
			if ctx.Err() != nil {
				return RunResult{Aborted: true}, nil
			}
			return RunResult{}, err
		}

		// No tool calls means the model is done
		if len(response.ToolCalls) == 0 {
			return RunResult{
				Response:  response.Content,
				ToolCalls: allToolCalls,
				Usage:     response.Usage,
			}, nil
		}

		toolResults := make([]ToolResult, 0, len(response.ToolCalls))
		for _, toolCall := range response.ToolCalls {
			// Tools that take their own deadline get headroom past it
			timeout := defaultToolTimeout
			if raw, ok := toolCall.Parameters["timeout_seconds"].(float64); ok && raw > 0 {
				timeout = time.Duration(raw*float64(time.Second)) + 5*time.Second
			}

			toolStart := time.Now()
			result := r.toolExecutor.Execute(ctx, toolCall.Name, toolCall.Parameters, timeout)
			if r.metrics != nil {
				status := "success"
				if !result.Success {
					status = "failure"
				}
				r.metrics.ToolExecutionsTotal.WithLabelValues(toolCall.Name, status).Inc()
				r.metrics.ToolExecutionDuration.WithLabelValues(toolCall.Name).Observe(time.Since(toolStart).Seconds())
			}

			toolResults = append(toolResults, ToolResult{
				ToolCallID: toolCall.ID,
				Output:     formatToolOutput(result.Output),
				Error:      result.Error,
			})
		}

		currentMessages = append(currentMessages, Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		for _, result := range toolResults {
			content := result.Output
			if result.Error != "" {
				content = result.Error
			}
			currentMessages = append(currentMessages, Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: result.ToolCallID,
			})
		}

		allToolCalls = append(allToolCalls, response.ToolCalls...)
	}

	return RunResult{}, fmt.Errorf("maximum tool execution turns exceeded")
}

// callLLMWithRetry calls the provider with exponential backoff retry
func (r *Runner) callLLMWithRetry(ctx context.Context, provider LLMProvider, messages []Message, tools []ToolSpec, systemPrompt string, params RunParams) (*LLMResponse, error) {
	maxRetries := params.Config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	request := LLMRequest{
		Model:        params.Config.Model,
		Messages:     messages,
		Tools:        tools,
		Temperature:  params.Config.Temperature,
		MaxTokens:    params.Config.MaxTokens,
		SystemPrompt: systemPrompt,
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		response, err := provider.Call(ctx, request)
		if err == nil {
			return response, nil
		}

		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}

		// Last attempt - don't wait
		if attempt == maxRetries-1 {
			break
		}

		if r.metrics != nil {
			r.metrics.AgentRetriesTotal.Inc()
		}

		// Exponential backoff: 1s, 2s, 4s
		delayMs := 1000 * (1 << attempt)
		r.logger.Info().
			Int("attempt", attempt+1).
			Int("delay_ms", delayMs).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxRetries, lastErr)
}

// updateProfileSuccess resets failure count for a profile
func (r *Runner) updateProfileSuccess(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount = 0
			r.authProfiles[i].CooldownUntil = nil
			break
		}
	}
}

// updateProfileFailure marks a profile as failed and backs it off
func (r *Runner) updateProfileFailure(profileID string) {
	r.authMu.Lock()
	defer r.authMu.Unlock()

	for i := range r.authProfiles {
		if r.authProfiles[i].ID == profileID {
			r.authProfiles[i].FailureCount++
			cooldownMs := time.Now().UnixMilli() + int64(60000*r.authProfiles[i].FailureCount)
			r.authProfiles[i].CooldownUntil = &cooldownMs
			break
		}
	}
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].Priority < profiles[j].Priority
	})
}

// formatToolOutput renders a tool output value for the model
func formatToolOutput(output interface{}) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
