package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Identify a landmark sample",
	Long: `Identify a raw landmark sample against the enrolled templates.

With --course the matched student is also marked present in the course's
open session.

Examples:
  face-sync checkin --landmarks 0.1,0.2,...
  face-sync checkin --course "CSC 401" --landmarks 0.1,0.2,...`,
	RunE: runCheckin,
}

func init() {
	rootCmd.AddCommand(checkinCmd)

	checkinCmd.Flags().Float64Slice("landmarks", nil, "Raw landmark vector")
	checkinCmd.Flags().String("course", "", "Mark the matched student present in this course's open session")
	checkinCmd.Flags().Bool("json", false, "Output as JSON")
}

// CheckinOutput represents the result of a checkin command
type CheckinOutput struct {
	Matched  bool           `json:"matched"`
	OwnerID  string         `json:"owner_id,omitempty"`
	Score    float64        `json:"score"`
	Distance float64        `json:"distance"`
	Session  *SessionOutput `json:"session,omitempty"`
}

func runCheckin(cmd *cobra.Command, args []string) error {
	landmarks := mustGetFloat64Slice(cmd, "landmarks")
	course := mustGetString(cmd, "course")
	jsonOutput := mustGetBool(cmd, "json")
	if len(landmarks) == 0 {
		return errors.New("--landmarks is required")
	}

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

	if course == "" {
		match, err := eng.service.CheckIn(ctx, landmarks)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(CheckinOutput{Matched: match.Matched, OwnerID: match.OwnerID, Score: match.Score, Distance: match.Distance()})
		}
		printMatch(match)
		return nil
	}

	result, err := eng.service.Attend(ctx, course, landmarks)
	if err != nil {
		return err
	}
	if jsonOutput {
		out := CheckinOutput{
			Matched:  result.Match.Matched,
			OwnerID:  result.Match.OwnerID,
			Score:    result.Match.Score,
			Distance: result.Match.Distance(),
		}
		if result.Session != nil {
			s := sessionOutput(result.Session, false)
			out.Session = &s
		}
		return outputJSON(out)
	}

	printMatch(result.Match)
	if result.Session != nil {
		fmt.Printf("Marked present in session %s (%d/%d present)\n",
			result.Session.ID, result.Session.PresentCount(), len(result.Session.Students))
	}
	return nil
}
