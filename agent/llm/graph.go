package llm

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// CompilePromptGraph builds prompt -> model for a single user-turn template.
// Template variables use FString syntax, so literal braces must not appear
// in userTemplate.
func CompilePromptGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	userTemplate string,
	graphName string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required for %s", graphName)
	}
	template := einoprompt.FromMessages(
		schema.FString,
		schema.UserMessage(userTemplate),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", graphName, err)
	}
	return runner, nil
}
