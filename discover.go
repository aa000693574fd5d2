package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/trendgeo/agent/agents/discovery"
	contractx "github.com/tanpawarit/trendgeo/agent/contract"
	"github.com/tanpawarit/trendgeo/agent/extractor"
	"github.com/tanpawarit/trendgeo/agent/geo"
	"github.com/tanpawarit/trendgeo/agent/protocol"
	"github.com/tanpawarit/trendgeo/agent/trend"
)

func newDiscoverCmd() *cobra.Command {
	var (
		meta           contractx.ProductMetadata
		style          string
		location       string
		callTimeout    time.Duration
		geocodeTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find nearby stores selling on-trend products and print them as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := loadRuntime(ctx, "trend-geo-client")
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.peers.SearchAddress == "" || rt.peers.ExtractorAddress == "" || rt.peers.GeoAddress == "" {
				return errors.New("PEERS_SEARCH_ADDRESS, PEERS_EXTRACTOR_ADDRESS and PEERS_GEO_ADDRESS are required")
			}

			llmCfg, err := loadLLM()
			if err != nil {
				return err
			}
			analyzer, err := newTrendAnalyzer(ctx, llmCfg)
			if err != nil {
				return err
			}
			searcher, err := trend.NewSearcher(rt.agent, protocol.Address(rt.peers.SearchAddress), callTimeout)
			if err != nil {
				return err
			}
			extractClient, err := extractor.NewClient(rt.agent, protocol.Address(rt.peers.ExtractorAddress), callTimeout)
			if err != nil {
				return err
			}
			resolver, err := geo.NewResolver(rt.agent, protocol.Address(rt.peers.GeoAddress), geo.NewCache(rt.agent.Storage()),
				geo.WithDefaultTimeout(geocodeTimeout))
			if err != nil {
				return err
			}

			orchestrator, err := discovery.New(analyzer, searcher, extractClient, resolver, discovery.Config{GeocodeTimeout: geocodeTimeout})
			if err != nil {
				return err
			}
			stores, err := orchestrator.Discover(ctx, meta, style, location)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stores)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&meta.Title, "title", "", "product title")
	flags.StringVar(&meta.Description, "description", "", "product description")
	flags.StringVar(&meta.Category, "category", "", "product category")
	flags.StringVar(&style, "style", "", "what the user is looking for")
	flags.StringVar(&location, "location", "", "user location")
	flags.DurationVar(&callTimeout, "call-timeout", 60*time.Second, "timeout for search and extraction calls")
	flags.DurationVar(&geocodeTimeout, "geocode-timeout", geo.DefaultResolveTimeout, "timeout per geocode call")
	return cmd
}
