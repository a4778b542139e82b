package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rpggio/officedesk/internal/events"
)

const unknown = "Unknown"

// CatalogEntry describes one inbound event the synchronizer understands.
type CatalogEntry struct {
	Event string
	Topic events.Topic
	// Template is the message with {field.path} placeholders.
	Template string
	// Title is used for desktop notifications.
	Title string
}

var catalog = []CatalogEntry{
	{Event: "task-created", Topic: events.TopicTasks, Template: "New task assigned: {task.title}", Title: "New task"},
	{Event: "task-updated", Topic: events.TopicTasks, Template: "Task updated: {task.title}", Title: "Task updated"},
	{Event: "task-deleted", Topic: events.TopicTasks, Template: "Task deleted: {taskId}", Title: "Task deleted"},
	{Event: "project-created", Topic: events.TopicProjects, Template: "New project: {project.name}", Title: "New project"},
	{Event: "project-updated", Topic: events.TopicProjects, Template: "Project updated: {project.name}", Title: "Project updated"},
	{Event: "project-deleted", Topic: events.TopicProjects, Template: "Project deleted", Title: "Project deleted"},
	{Event: "meeting-scheduled", Topic: events.TopicMeetings, Template: "Meeting scheduled: {meeting.title}", Title: "Meeting scheduled"},
	{Event: "meeting-updated", Topic: events.TopicMeetings, Template: "Meeting updated: {meeting.title}", Title: "Meeting updated"},
	{Event: "attendance-marked", Topic: events.TopicAttendance, Template: "Attendance marked by {employeeName}", Title: "Attendance"},
	{Event: "feedback-submitted", Topic: events.TopicFeedback, Template: "New feedback from {clientName}", Title: "New feedback"},
	{Event: "employee-added", Topic: events.TopicEmployees, Template: "New employee added: {employee.name}", Title: "New employee"},
	{Event: "client-added", Topic: events.TopicClients, Template: "New client added: {client.name}", Title: "New client"},
}

var catalogIndex = func() map[string]CatalogEntry {
	m := make(map[string]CatalogEntry, len(catalog))
	for _, e := range catalog {
		m[e.Event] = e
	}
	return m
}()

// Catalog returns the supported events in a stable order.
func Catalog() []CatalogEntry {
	out := make([]CatalogEntry, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds the catalog entry for an event name.
func Lookup(event string) (CatalogEntry, bool) {
	e, ok := catalogIndex[event]
	return e, ok
}

// Message renders the entry's template against a raw payload.
// Non-object payloads behave like an empty object.
func (e CatalogEntry) Message(payload json.RawMessage) string {
	fields := decodeObject(payload)

	var b strings.Builder
	rest := e.Template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		b.WriteString(render(lookupPath(fields, rest[open+1:open+end])))
		rest = rest[open+end+1:]
	}
	return b.String()
}

func decodeObject(payload json.RawMessage) map[string]any {
	if len(payload) == 0 {
		return map[string]any{}
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func lookupPath(obj map[string]any, path string) any {
	var cur any = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return unknown
	case string:
		if strings.TrimSpace(val) == "" {
			return unknown
		}
		return val
	case json.Number:
		return val.String()
	case bool:
		return fmt.Sprint(val)
	default:
		// Objects and arrays have no sensible display form.
		return unknown
	}
}
