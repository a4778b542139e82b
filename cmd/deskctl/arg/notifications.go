package arg

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/rpggio/officedesk/internal/transport"
)

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications from live events, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var list transport.NotificationList
		if err := call(cmd, http.MethodGet, "/notifications", nil, &list); err != nil {
			return err
		}
		printNotifications(cmd.OutOrStdout(), list)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(cmd, http.MethodPost, "/notifications/"+url.PathEscape(args[0])+"/read", nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Marked %s as read\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every notification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(cmd, http.MethodDelete, "/notifications", nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Notifications cleared")
		return nil
	},
}

var connectionCmd = &cobra.Command{
	Use:   "connection",
	Short: "Show the live connection to the office backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var status struct {
			State  string `json:"state"`
			Role   string `json:"role"`
			UserID string `json:"user_id"`
		}
		if err := call(cmd, http.MethodGet, "/connection", nil, &status); err != nil {
			return err
		}
		if status.UserID == "" {
			fmt.Fprintln(cmd.OutOrStdout(), status.State)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s as %s %s\n", status.State, status.Role, status.UserID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notificationsCmd, readCmd, clearCmd, connectionCmd)
}

func printNotifications(w io.Writer, list transport.NotificationList) {
	if len(list.Notifications) == 0 {
		fmt.Fprintln(w, "No notifications")
		return
	}
	for _, n := range list.Notifications {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", mark, n.ID, n.Timestamp.Local().Format("Jan 2 15:04"), n.Message)
	}
	fmt.Fprintf(w, "%d unread\n", list.Unread)
}
