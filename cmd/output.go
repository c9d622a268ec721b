package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
)

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// SessionOutput is the JSON form of a session printed by the CLI.
type SessionOutput struct {
	ID        string                   `json:"id"`
	CourseID  string                   `json:"course_id"`
	State     database.SessionState    `json:"state"`
	Version   int64                    `json:"version"`
	CreatedAt time.Time                `json:"created_at"`
	Present   int                      `json:"present"`
	Total     int                      `json:"total"`
	Students  []database.StudentStatus `json:"students,omitempty"`
}

func sessionOutput(s *database.StoredSession, withStudents bool) SessionOutput {
	out := SessionOutput{
		ID:        s.ID,
		CourseID:  s.CourseID,
		State:     s.State,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		Present:   s.PresentCount(),
		Total:     len(s.Students),
	}
	if withStudents {
		out.Students = s.Students
	}
	return out
}

// printSession prints a session header and, when withStudents is set, every
// roster entry.
func printSession(s *database.StoredSession, withStudents bool) {
	fmt.Printf("Session %s\n", s.ID)
	fmt.Printf("  Course:  %s\n", s.CourseID)
	fmt.Printf("  State:   %s\n", s.State)
	fmt.Printf("  Created: %s\n", s.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("  Present: %d/%d\n", s.PresentCount(), len(s.Students))
	if !withStudents {
		return
	}
	fmt.Println()
	for _, st := range s.Students {
		marked := ""
		if st.MarkedAt != nil {
			marked = st.MarkedAt.Local().Format(time.TimeOnly)
		}
		fmt.Printf("  %-24s %-8s %s\n", st.StudentID, st.Status, marked)
	}
}

func printMatch(m facematch.Match) {
	if !m.Matched {
		fmt.Println("No match")
		return
	}
	fmt.Printf("Matched %s (template %d, score %.4f)\n", m.OwnerID, m.TemplateID, m.Score)
}
