package arg

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/rpggio/officedesk/internal/domain/attendance"
	"github.com/rpggio/officedesk/internal/transport"
)

var checkInLocation string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the attendance session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary attendance.Summary
		if err := call(cmd, http.MethodGet, "/attendance", nil, &summary); err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

var checkInCmd = &cobra.Command{
	Use:   "check-in",
	Short: "Open today's attendance session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary attendance.Summary
		req := transport.CheckInRequest{Location: checkInLocation}
		if err := call(cmd, http.MethodPost, "/attendance/check-in", req, &summary); err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

var checkOutCmd = &cobra.Command{
	Use:   "check-out",
	Short: "Close the open attendance session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var summary attendance.Summary
		if err := call(cmd, http.MethodPost, "/attendance/check-out", nil, &summary); err != nil {
			return err
		}
		printSummary(cmd.OutOrStdout(), summary)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the attendance session without checking out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(cmd, http.MethodPost, "/attendance/reset", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session reset")
		return nil
	},
}

func init() {
	checkInCmd.Flags().StringVar(&checkInLocation, "location", "", "where you work today (default: the agent's configured location)")
	rootCmd.AddCommand(statusCmd, checkInCmd, checkOutCmd, resetCmd)
}

func printSummary(w io.Writer, s attendance.Summary) {
	switch {
	case s.Session.CheckedIn && s.Session.CheckInTime != nil:
		fmt.Fprintf(w, "Checked in at %s (%s)\n", s.Session.CheckInTime.Format("15:04"), s.Session.Location)
	case s.Session.CheckOutTime != nil:
		fmt.Fprintf(w, "Checked out at %s\n", s.Session.CheckOutTime.Format("15:04"))
	default:
		fmt.Fprintln(w, "Not checked in")
		return
	}
	fmt.Fprintf(w, "Worked:   %s\n", s.WorkDuration)
	fmt.Fprintf(w, "Overtime: %s\n", s.Overtime)
	if s.LateCheckIn {
		fmt.Fprintln(w, "Late check-in")
	}
	if s.EarlyCheckOut {
		fmt.Fprintln(w, "Early check-out")
	}
}
