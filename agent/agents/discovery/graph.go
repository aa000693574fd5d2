package discovery

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/trendgeo/agent/nodes"
)

func (o *Orchestrator) compileDiscoverGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("analyze_trend",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AnalyzeTrend(ctx, in, o.analyzer)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node analyze_trend: %w", err)
	}

	if err := graph.AddLambdaNode("search_stores",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SearchStores(ctx, in, o.searcher)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node search_stores: %w", err)
	}

	if err := graph.AddLambdaNode("extract_stores",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExtractStores(ctx, in, o.extractor)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract_stores: %w", err)
	}

	if err := graph.AddLambdaNode("geocode_stores",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.GeocodeStores(ctx, in, o.resolver, o.geocodeTimeout)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node geocode_stores: %w", err)
	}

	if err := graph.AddLambdaNode("assemble_result",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.AssembleResult(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node assemble_result: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "analyze_trend"},
		{"analyze_trend", "search_stores"},
		{"search_stores", "extract_stores"},
		{"extract_stores", "geocode_stores"},
		{"geocode_stores", "assemble_result"},
		{"assemble_result", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("discovery.find_stores"))
	if err != nil {
		return nil, fmt.Errorf("compile discovery graph: %w", err)
	}
	return runner, nil
}
