package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/kozaktomas/face-sync/internal/constants"
	"github.com/kozaktomas/face-sync/internal/database/postgres"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect and maintain enrolled templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesList,
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete <owner>",
	Short: "Delete the template of an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesDelete,
}

var templatesReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the persisted HNSW template index",
	Long: `Rebuild the HNSW template index from the database and save it to
TEMPLATE_INDEX_PATH. Requires MATCH_STRATEGY=hnsw.`,
	Args: cobra.NoArgs,
	RunE: runTemplatesReindex,
}

var templatesSimilarCmd = &cobra.Command{
	Use:   "similar <owner>",
	Short: "List other owners whose templates resemble this owner's",
	Long: `List the enrolled templates closest to an owner's template by cosine
similarity, computed in PostgreSQL with pgvector. Useful to spot look-alike
enrollments that could be confused at check-in.`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatesSimilar,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd, templatesDeleteCmd, templatesReindexCmd, templatesSimilarCmd)

	templatesCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	templatesSimilarCmd.Flags().Int("limit", constants.DefaultSimilarLimit, "Number of neighbors to show")
}

// TemplateOutput is the JSON form of a template printed by the CLI.
type TemplateOutput struct {
	ID        int64     `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Dim       int       `json:"dim"`
	UpdatedAt time.Time `json:"updated_at"`
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	return withEngine(func(ctx context.Context, e *engine) error {
		templates, err := e.service.ListTemplates(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			out := make([]TemplateOutput, len(templates))
			for i, t := range templates {
				out[i] = TemplateOutput{ID: t.ID, OwnerID: t.OwnerID, Dim: t.Dim, UpdatedAt: t.UpdatedAt}
			}
			return outputJSON(out)
		}

		if len(templates) == 0 {
			fmt.Println("No templates enrolled.")
			return nil
		}
		fmt.Printf("%-8s  %-24s  %-5s  %s\n", "ID", "OWNER", "DIM", "UPDATED")
		for _, t := range templates {
			fmt.Printf("%-8d  %-24s  %-5d  %s\n", t.ID, t.OwnerID, t.Dim, t.UpdatedAt.Local().Format(time.DateTime))
		}
		fmt.Printf("\n%d templates\n", len(templates))
		return nil
	})
}

func runTemplatesDelete(cmd *cobra.Command, args []string) error {
	return withEngine(func(ctx context.Context, e *engine) error {
		if err := e.service.DeleteTemplate(ctx, args[0]); err != nil {
			return err
		}
		if err := e.service.SaveIndex(ctx); err != nil {
			return err
		}
		fmt.Printf("Deleted template of %s\n", args[0])
		return nil
	})
}

func runTemplatesReindex(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDatabase(cfg); err != nil {
		return err
	}
	if cfg.Matching.Strategy != "hnsw" || cfg.Matching.IndexPath == "" {
		return errors.New("reindex requires MATCH_STRATEGY=hnsw and TEMPLATE_INDEX_PATH")
	}

	// Drop the persisted graph so the catalog rebuilds it from the database.
	for _, path := range []string{cfg.Matching.IndexPath, cfg.Matching.IndexPath + ".meta"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	ctx := context.Background()
	start := time.Now()
	eng, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.service.SaveIndex(ctx); err != nil {
		return err
	}
	fmt.Printf("Indexed %d templates into %s in %s\n",
		eng.service.TemplateCount(), cfg.Matching.IndexPath, formatDuration(time.Since(start)))
	return nil
}

func runTemplatesSimilar(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	pool, err := openPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewTemplateRepository(pool)
	t, err := repo.GetTemplate(ctx, args[0])
	if err != nil {
		return err
	}
	neighbors, err := repo.FindNearest(ctx, t.Vector, limit, t.OwnerID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(neighbors)
	}
	if len(neighbors) == 0 {
		fmt.Println("No other templates enrolled.")
		return nil
	}
	fmt.Printf("Templates closest to %s:\n", t.OwnerID)
	for _, n := range neighbors {
		fmt.Printf("  %-24s  similarity %.4f\n", n.OwnerID, n.Similarity)
	}
	return nil
}
