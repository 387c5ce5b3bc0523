// Package mcpserver exposes operator tools over the Model Context Protocol:
// inspect the loaded responses, dry-run a message against the rules, reload
// or save the configuration, and query recent trigger history.
package mcpserver

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kingfisher-im/kingfisher/internal/config"
	"github.com/kingfisher-im/kingfisher/internal/triggerlog"
	"github.com/kingfisher-im/kingfisher/llm"
)

// TextSender sends standalone messages to a chat.
type TextSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// AdminServer provides MCP tools for operating the bot.
type AdminServer struct {
	server   *mcp.Server
	store    *config.Store
	triggers *triggerlog.Store
	worker   *llm.Worker
	sender   TextSender
}

// NewServer creates the admin MCP server. triggers, worker and sender may be
// nil; the corresponding tools then report that the feature is disabled.
func NewServer(store *config.Store, triggers *triggerlog.Store, worker *llm.Worker, sender TextSender) *AdminServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "kingfisher-admin",
		Version: "v1.0.0",
	}, nil)

	s := &AdminServer{
		server:   server,
		store:    store,
		triggers: triggers,
		worker:   worker,
		sender:   sender,
	}
	s.registerTools()
	return s
}

func (s *AdminServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_list_responses",
		Description: "List the configured responses with their rules, overrides and content kind.",
	}, s.handleListResponses)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_test_message",
		Description: "Dry-run a message against the rule sets. Reports which responses match; cooldown and hit-rate state are not touched.",
	}, s.handleTestMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_reload_config",
		Description: "Reload the response configuration from disk. A bad file keeps the previous configuration.",
	}, s.handleReloadConfig)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_save_config",
		Description: "Write the current in-memory configuration back to the config file.",
	}, s.handleSaveConfig)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_recent_triggers",
		Description: "Show the most recently fired responses from the trigger log.",
	}, s.handleRecentTriggers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_send_message",
		Description: "Send a text message to a chat as the bot.",
	}, s.handleSendMessage)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kingfisher_ask",
		Description: "Ask the bot's LLM collaborator a free-form question. Disabled unless an API key is configured.",
	}, s.handleAsk)
}

// ResponseInfo summarizes one configured response.
type ResponseInfo struct {
	Name        string   `json:"name"`
	Rules       string   `json:"rules"`
	Kind        string   `json:"kind"`
	HitRate     *float64 `json:"hit_rate,omitempty"`
	CooldownSec *int64   `json:"cooldown_seconds,omitempty"`
	Unskippable bool     `json:"unskippable,omitempty"`
}

// ListResponsesInput is empty - no input needed
type ListResponsesInput struct{}

// ListResponsesOutput describes the current configuration generation.
type ListResponsesOutput struct {
	DefaultCooldownSec int64          `json:"default_cooldown_seconds"`
	DefaultHitRate     float64        `json:"default_hit_rate"`
	HelpText           string         `json:"help_text,omitempty"`
	Responses          []ResponseInfo `json:"responses"`
}

func (s *AdminServer) handleListResponses(ctx context.Context, req *mcp.CallToolRequest, input ListResponsesInput) (*mcp.CallToolResult, ListResponsesOutput, error) {
	cfg := s.store.Snapshot()

	out := ListResponsesOutput{
		DefaultCooldownSec: int64(cfg.DefaultCooldown / time.Second),
		DefaultHitRate:     cfg.DefaultHitRate,
		HelpText:           cfg.HelpText,
	}
	for _, r := range cfg.Responses {
		info := ResponseInfo{
			Name:        r.Name,
			Rules:       r.Ruleset.Source(),
			Kind:        kindName(r.Kind.Type),
			HitRate:     r.HitRate,
			Unskippable: r.Unskippable,
		}
		if r.Cooldown != nil {
			secs := int64(*r.Cooldown / time.Second)
			info.CooldownSec = &secs
		}
		out.Responses = append(out.Responses, info)
	}
	return nil, out, nil
}

func kindName(t config.ResponseType) string {
	switch t {
	case config.KindText:
		return "text"
	case config.KindRandomText:
		return "random_text"
	case config.KindImage:
		return "image"
	case config.KindTextAndImage:
		return "text_and_image"
	default:
		return "none"
	}
}

// TestMessageInput is the input for the dry-run tool
type TestMessageInput struct {
	Text string `json:"text" jsonschema:"The message text to evaluate against the rule sets"`
}

// TestMessageOutput lists the matching responses
type TestMessageOutput struct {
	Matches []string `json:"matches"`
}

func (s *AdminServer) handleTestMessage(ctx context.Context, req *mcp.CallToolRequest, input TestMessageInput) (*mcp.CallToolResult, TestMessageOutput, error) {
	return nil, TestMessageOutput{Matches: s.store.Snapshot().MatchNames(input.Text)}, nil
}

// ReloadConfigInput is empty - no input needed
type ReloadConfigInput struct{}

// ReloadConfigOutput reports the active generation after the reload attempt
type ReloadConfigOutput struct {
	Responses int `json:"responses"`
}

func (s *AdminServer) handleReloadConfig(ctx context.Context, req *mcp.CallToolRequest, input ReloadConfigInput) (*mcp.CallToolResult, ReloadConfigOutput, error) {
	s.store.Reload()
	return nil, ReloadConfigOutput{Responses: len(s.store.Snapshot().Responses)}, nil
}

// SaveConfigInput is empty - no input needed
type SaveConfigInput struct{}

// SaveConfigOutput reports the save result
type SaveConfigOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *AdminServer) handleSaveConfig(ctx context.Context, req *mcp.CallToolRequest, input SaveConfigInput) (*mcp.CallToolResult, SaveConfigOutput, error) {
	if err := s.store.Save(); err != nil {
		return nil, SaveConfigOutput{Success: false, Error: err.Error()}, nil
	}
	return nil, SaveConfigOutput{Success: true}, nil
}

// RecentTriggersInput specifies how many entries to retrieve
type RecentTriggersInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of entries to retrieve (default 20)"`
}

// TriggerInfo is one fired response
type TriggerInfo struct {
	Response    string `json:"response"`
	ChatID      string `json:"chat_id"`
	MsgID       string `json:"msg_id"`
	TriggeredAt string `json:"triggered_at"`
}

// RecentTriggersOutput contains the trigger history
type RecentTriggersOutput struct {
	Triggers []TriggerInfo `json:"triggers"`
	Error    string        `json:"error,omitempty"`
}

func (s *AdminServer) handleRecentTriggers(ctx context.Context, req *mcp.CallToolRequest, input RecentTriggersInput) (*mcp.CallToolResult, RecentTriggersOutput, error) {
	if s.triggers == nil {
		return nil, RecentTriggersOutput{Error: "trigger log disabled"}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	entries, err := s.triggers.Recent(ctx, limit)
	if err != nil {
		return nil, RecentTriggersOutput{Error: err.Error()}, nil
	}

	out := RecentTriggersOutput{}
	for _, e := range entries {
		out.Triggers = append(out.Triggers, TriggerInfo{
			Response:    e.Response,
			ChatID:      e.ChatID,
			MsgID:       e.MsgID,
			TriggeredAt: e.TriggeredAt.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// SendMessageInput is the input for the send tool
type SendMessageInput struct {
	ChatID string `json:"chat_id" jsonschema:"The chat to send to"`
	Text   string `json:"text" jsonschema:"The message text"`
}

// SendMessageOutput reports the send result
type SendMessageOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *AdminServer) handleSendMessage(ctx context.Context, req *mcp.CallToolRequest, input SendMessageInput) (*mcp.CallToolResult, SendMessageOutput, error) {
	if s.sender == nil {
		return nil, SendMessageOutput{Error: "platform credentials not configured"}, nil
	}
	if err := s.sender.SendText(ctx, input.ChatID, input.Text); err != nil {
		return nil, SendMessageOutput{Error: err.Error()}, nil
	}
	return nil, SendMessageOutput{Success: true}, nil
}

// AskInput is the input for the LLM tool
type AskInput struct {
	Prompt string `json:"prompt" jsonschema:"The question to ask"`
}

// AskOutput is the LLM answer
type AskOutput struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *AdminServer) handleAsk(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (*mcp.CallToolResult, AskOutput, error) {
	if s.worker == nil {
		return nil, AskOutput{Error: "llm collaborator not configured"}, nil
	}

	answer, err := s.worker.Ask(ctx, input.Prompt)
	if err != nil {
		return nil, AskOutput{Error: err.Error()}, nil
	}
	return nil, AskOutput{Answer: answer}, nil
}

// Run starts the MCP server with stdio transport
func (s *AdminServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
