package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage attendance sessions",
	Long: `Open, inspect, update and close attendance sessions of a course.

Course codes are matched case-insensitively; "csc-401" and "CSC 401" name
the same course.`,
}

var sessionOpenCmd = &cobra.Command{
	Use:   "open <course>",
	Short: "Open a new session, superseding the open one",
	Args:  cobra.ExactArgs(1),
	RunE: runSessionCommand(func(ctx context.Context, e *engine, args []string) (*database.StoredSession, error) {
		return e.service.OpenSession(ctx, args[0])
	}),
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <course>",
	Short: "Show the open session with every student",
	Args:  cobra.ExactArgs(1),
	RunE: runSessionCommand(func(ctx context.Context, e *engine, args []string) (*database.StoredSession, error) {
		return e.service.GetActiveSession(ctx, args[0])
	}),
}

var sessionMarkCmd = &cobra.Command{
	Use:   "mark <course> <student>",
	Short: "Mark a student present in the open session",
	Args:  cobra.ExactArgs(2),
	RunE: runSessionCommand(func(ctx context.Context, e *engine, args []string) (*database.StoredSession, error) {
		return e.service.ConfirmAttendance(ctx, args[0], args[1])
	}),
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <course>",
	Short: "Close the open session",
	Args:  cobra.ExactArgs(1),
	RunE: runSessionCommand(func(ctx context.Context, e *engine, args []string) (*database.StoredSession, error) {
		return e.service.CloseSession(ctx, args[0])
	}),
}

var sessionListCmd = &cobra.Command{
	Use:   "list <course>",
	Short: "List the sessions of a course, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionList,
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionOpenCmd, sessionShowCmd, sessionMarkCmd, sessionCloseCmd, sessionListCmd)

	sessionCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	sessionListCmd.Flags().Int("limit", database.DefaultListLimit, "Maximum number of sessions")
}

// withEngine opens the engine on the configured database for the duration of fn.
func withEngine(fn func(ctx context.Context, e *engine) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDatabase(cfg); err != nil {
		return err
	}
	ctx := context.Background()

	eng, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()
	return fn(ctx, eng)
}

// runSessionCommand runs a single-session operation and prints its result.
func runSessionCommand(op func(ctx context.Context, e *engine, args []string) (*database.StoredSession, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		jsonOutput := mustGetBool(cmd, "json")
		return withEngine(func(ctx context.Context, e *engine) error {
			s, err := op(ctx, e, args)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(sessionOutput(s, true))
			}
			printSession(s, true)
			return nil
		})
	}
}

func runSessionList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	limit := mustGetInt(cmd, "limit")

	return withEngine(func(ctx context.Context, e *engine) error {
		sessions, err := e.service.ListSessions(ctx, args[0], limit)
		if err != nil {
			return err
		}

		if jsonOutput {
			out := make([]SessionOutput, len(sessions))
			for i := range sessions {
				out[i] = sessionOutput(&sessions[i], false)
			}
			return outputJSON(out)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		fmt.Printf("%-36s  %-10s  %-19s  %s\n", "ID", "STATE", "CREATED", "PRESENT")
		for _, s := range sessions {
			fmt.Printf("%-36s  %-10s  %-19s  %d/%d\n",
				s.ID, s.State, s.CreatedAt.Local().Format("2006-01-02 15:04:05"), s.PresentCount(), len(s.Students))
		}
		return nil
	})
}
