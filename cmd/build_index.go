package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tanay2104/Smart-Email/config"
	"github.com/Tanay2104/Smart-Email/core/agent/rag"
	"github.com/Tanay2104/Smart-Email/internal/bootstrap"
)

var buildIndexDomains string

// NewBuildIndexCommand creates the build-index command.
func NewBuildIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Embed the domain catalog and write the vector index",
		Long: `Read the domains list from the heuristics YAML file, embed each description
(or the name when the description is empty) and write the vector index and the
catalog metadata in the same order.

Rebuild whenever the catalog or EMBED_MODEL changes.`,
		RunE: runBuildIndex,
	}

	cmd.Flags().StringVar(&buildIndexDomains, "domains", "", "Heuristics YAML file (overrides SMARTMAIL_DOMAINS)")

	return cmd
}

func runBuildIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if buildIndexDomains != "" {
		cfg.HeuristicPath = buildIndexDomains
	}

	// unlike triage, a broken catalog file must fail here
	heuristics, err := config.ReadHeuristics(cfg.HeuristicPath)
	if err != nil {
		return err
	}

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer cleanup()

	writer, err := deps.CatalogWriter(ctx)
	if err != nil {
		return err
	}

	indexer := rag.NewIndexerService(deps.Embedder, writer, zlog)
	index, err := indexer.BuildCatalog(ctx, heuristics.Domains, cfg.IndexPath)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d domains (dim %d) into %s\n", index.Len(), index.Dim(), cfg.IndexPath)
	return nil
}
