package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"coralbricks/internal/config"
	"coralbricks/internal/models"
)

const DefaultSystemPrompt = "You are the Coral Bricks AI agent builder. Help the user design an AI agent " +
	"for their business step by step. Ask one clarifying question at a time. You may mark " +
	"steps with bracketed labels such as [Clarifying question], [Agent plan] or [Connect to Quickbooks]. " +
	"When you propose a workflow, include a JSON object with \"nodes\" and \"edges\"."

// ModelBackend answers with an LLM, optionally through a ReAct agent that
// can search the web.
type ModelBackend struct {
	chatModel    model.ToolCallingChatModel
	agent        *react.Agent
	systemPrompt string
}

// NewModelBackend builds the chat model for cfg.Provider.
func NewModelBackend(ctx context.Context, cfg config.AgentConfig, provCfg config.ProviderConfig) (*ModelBackend, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch cfg.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{APIKey: provCfg.APIKey})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURL *string
		if provCfg.BaseURL != "" {
			baseURL = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURL,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}

	var tools []tool.BaseTool
	if cfg.WebSearch {
		if ws := NewWebSearchTool(ctx); ws != nil {
			tools = append(tools, ws)
		}
	}
	return newModelBackend(ctx, chatModel, tools, cfg.SystemPrompt)
}

func newModelBackend(ctx context.Context, chatModel model.ToolCallingChatModel, tools []tool.BaseTool, systemPrompt string) (*ModelBackend, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	b := &ModelBackend{chatModel: chatModel, systemPrompt: systemPrompt}
	if len(tools) > 0 {
		reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		b.agent = reactAgent
	}
	return b, nil
}

func (b *ModelBackend) Reply(ctx context.Context, req Request) (*Reply, error) {
	input := b.convertMessages(req)
	ctx = WithToolSession(ctx, req.SessionID)

	var (
		out *schema.Message
		err error
	)
	if b.agent != nil {
		out, err = b.agent.Generate(ctx, input)
	} else {
		out, err = b.chatModel.Generate(ctx, input)
	}
	if err != nil {
		return nil, fmt.Errorf("generate agent reply: %w", err)
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		log.Printf("[agent] model returned no content for session %s", req.SessionID)
		return nil, ErrEmptyResponse
	}
	return withDiagram(&Reply{Text: strings.TrimSpace(out.Content)}), nil
}

func (b *ModelBackend) convertMessages(req Request) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.History)+2)
	messages = append(messages, schema.SystemMessage(b.systemPrompt))
	for _, msg := range req.History {
		switch msg.Sender {
		case models.SenderUser:
			messages = append(messages, schema.UserMessage(msg.Text))
		case models.SenderAgent:
			messages = append(messages, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return append(messages, schema.UserMessage(req.Message))
}
