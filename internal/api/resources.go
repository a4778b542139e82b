package api

import (
	"context"
	"net/http"
	"time"
)

// Task is a unit of work assigned to an employee.
type Task struct {
	ID          string     `json:"_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	Project     string     `json:"project,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Project groups tasks for a client.
type Project struct {
	ID        string     `json:"_id"`
	Name      string     `json:"name"`
	Status    string     `json:"status,omitempty"`
	Client    string     `json:"client,omitempty"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Meeting is a scheduled meeting.
type Meeting struct {
	ID           string     `json:"_id"`
	Title        string     `json:"title"`
	Date         *time.Time `json:"date,omitempty"`
	Duration     int        `json:"duration,omitempty"`
	Participants []string   `json:"participants,omitempty"`
	Link         string     `json:"meetingLink,omitempty"`
}

// AttendanceRecord is one day of attendance as recorded by the backend.
type AttendanceRecord struct {
	ID               string     `json:"_id"`
	Employee         string     `json:"employee,omitempty"`
	Date             string     `json:"date"`
	CheckInTime      *time.Time `json:"checkInTime,omitempty"`
	CheckOutTime     *time.Time `json:"checkOutTime,omitempty"`
	Location         string     `json:"location,omitempty"`
	Status           string     `json:"status,omitempty"`
	TotalWorkMinutes int        `json:"totalWorkMinutes,omitempty"`
}

// Feedback is client feedback on a project.
type Feedback struct {
	ID      string `json:"_id"`
	Client  string `json:"client,omitempty"`
	Project string `json:"project,omitempty"`
	Rating  int    `json:"rating,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Employee is a staff member.
type Employee struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// Customer is a client organisation; the backend calls these clients.
type Customer struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Company string `json:"company,omitempty"`
}

func list[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	return list[Task](ctx, c, "/tasks")
}

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	return list[Project](ctx, c, "/projects")
}

func (c *Client) Meetings(ctx context.Context) ([]Meeting, error) {
	return list[Meeting](ctx, c, "/meetings")
}

func (c *Client) Attendance(ctx context.Context) ([]AttendanceRecord, error) {
	return list[AttendanceRecord](ctx, c, "/attendance")
}

func (c *Client) Feedback(ctx context.Context) ([]Feedback, error) {
	return list[Feedback](ctx, c, "/feedback")
}

func (c *Client) Employees(ctx context.Context) ([]Employee, error) {
	return list[Employee](ctx, c, "/employees")
}

func (c *Client) Clients(ctx context.Context) ([]Customer, error) {
	return list[Customer](ctx, c, "/clients")
}
