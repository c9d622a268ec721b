package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sync/internal/database/postgres"
	"github.com/kozaktomas/face-sync/internal/roster"
	"github.com/spf13/cobra"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage course rosters",
}

var rosterImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML roster file into PostgreSQL",
	Long: `Import the courses of a YAML roster file into the PostgreSQL courses and
enrollments tables. Course names are updated and students not enrolled yet
are added; existing enrollments and courses missing from the file are left
alone.

Sessions that are already open keep the student list they were opened with.`,
	Args: cobra.ExactArgs(1),
	RunE: runRosterImport,
}

var rosterCheckCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate a YAML roster file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRosterCheck,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterImportCmd, rosterCheckCmd)
}

func runRosterImport(cmd *cobra.Command, args []string) error {
	doc, err := roster.LoadFile(args[0])
	if err != nil {
		return err
	}

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

	repo := postgres.NewRosterRepository(pool)
	for _, c := range doc.Courses {
		n, err := repo.SaveCourse(ctx, c.Code, c.Name, c.Students)
		if err != nil {
			return fmt.Errorf("importing %s: %w", c.Code, err)
		}
		fmt.Printf("  %-16s %d new students\n", c.Code, n)
	}
	fmt.Printf("Imported %d courses\n", len(doc.Courses))
	return nil
}

func runRosterCheck(cmd *cobra.Command, args []string) error {
	doc, err := roster.LoadFile(args[0])
	if err != nil {
		return err
	}
	students := 0
	for _, c := range doc.Courses {
		students += len(c.Students)
	}
	fmt.Printf("%s: %d courses, %d enrollments\n", args[0], len(doc.Courses), students)
	return nil
}
