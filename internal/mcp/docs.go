package mcp

import (
	"context"
	"fmt"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/officedesk/internal/realtime"
)

const serverInstructions = `officedesk tracks the local attendance session and the live event feed from the office backend.

Attendance:
- check_in opens a session (optional location, default "Office"). Only one session can be open.
- check_out closes it and reports total work time; attendance_status shows duration, overtime and late/early flags.
- reset_session discards the session without a check-out.

Live events:
- Backend events (tasks, projects, meetings, attendance, feedback, employees, clients) become notifications.
- list_notifications, mark_notification_read and clear_notifications manage them.
- connection_status shows whether the live connection is up.

Docs:
- officedesk://docs/events (event catalog)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     func() string
}

var docResources = []docResource{
	{
		URI:         "officedesk://docs/events",
		Name:        "docs_events",
		Title:       "Live event catalog",
		Description: "Every backend event the desk understands, its notification text and the data it refreshes.",
		Content:     eventCatalogDoc,
	},
}

func eventCatalogDoc() string {
	var b strings.Builder
	b.WriteString("# Live event catalog\n\n")
	b.WriteString("Placeholders in braces are read from the event payload; missing values render as `Unknown`.\n\n")
	b.WriteString("| Event | Notification | Refreshes |\n")
	b.WriteString("|---|---|---|\n")
	for _, e := range realtime.Catalog() {
		fmt.Fprintf(&b, "| `%s` | %s | `%s` |\n", e.Event, e.Template, e.Topic)
	}
	return b.String()
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		content := doc.Content()

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     content,
				}},
			}, nil
		})
	}
}
