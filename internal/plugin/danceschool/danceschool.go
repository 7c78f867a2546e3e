// Package danceschool is a built-in sample plugin: class listings,
// registrations and private lesson scheduling for a small dance
// school. It holds its data statically, which keeps it useful as a
// routing target without any external service.
package danceschool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kahyalabs/kahya/internal/plugin"
)

// class is one scheduled group class.
type class struct {
	Level      string `json:"level"`
	Schedule   string `json:"schedule"`
	Instructor string `json:"instructor"`
	Price      string `json:"price"`
}

// classes maps dance type to its schedule.
var classes = map[string][]class{
	"salsa": {
		{Level: "Beginner", Schedule: "Monday 19:00", Instructor: "Maria", Price: "30€"},
		{Level: "Intermediate", Schedule: "Wednesday 20:00", Instructor: "Carlos", Price: "35€"},
		{Level: "Advanced", Schedule: "Friday 21:00", Instructor: "Juan", Price: "40€"},
	},
	"bachata": {
		{Level: "Beginner", Schedule: "Tuesday 19:00", Instructor: "Ana", Price: "30€"},
		{Level: "Intermediate", Schedule: "Thursday 20:00", Instructor: "Miguel", Price: "35€"},
	},
	"tango": {
		{Level: "Beginner", Schedule: "Wednesday 18:00", Instructor: "Diego", Price: "40€"},
		{Level: "Advanced", Schedule: "Saturday 15:00", Instructor: "Elena", Price: "45€"},
	},
}

// privateLessonPrice is the base price for a private lesson.
const privateLessonPrice = "60€"

// Plugin implements the danceschool plugin.
type Plugin struct {
	logger *slog.Logger
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "danceschool" }

func (p *Plugin) Description() string {
	return "Dance school: class schedules, registrations, private lessons (salsa, bachata, tango)"
}

func (p *Plugin) Actions() []plugin.ActionSpec {
	return []plugin.ActionSpec{
		{
			Name:        "list_classes",
			Description: "List available classes for a dance type",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dance_type": map[string]any{
						"type":        "string",
						"description": "salsa, bachata or tango",
					},
				},
				"required": []string{"dance_type"},
			},
		},
		{
			Name:        "register",
			Description: "Register a student for a class",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dance_type": map[string]any{"type": "string"},
					"level":      map[string]any{"type": "string"},
					"name":       map[string]any{"type": "string"},
					"email":      map[string]any{"type": "string"},
				},
				"required": []string{"dance_type", "level", "name"},
			},
		},
		{
			Name:        "schedule_private",
			Description: "Schedule a private lesson with an instructor",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"dance_type": map[string]any{"type": "string"},
					"instructor": map[string]any{"type": "string"},
					"date":       map[string]any{"type": "string"},
					"duration":   map[string]any{"type": "string"},
				},
				"required": []string{"dance_type", "instructor", "date"},
			},
		},
	}
}

func (p *Plugin) Init(_ context.Context, _ plugin.Settings, logger *slog.Logger) error {
	p.logger = logger.With("plugin", p.Name())
	return nil
}

func (p *Plugin) Execute(_ context.Context, req plugin.Request) (*plugin.Result, error) {
	switch req.Action {
	case "list_classes":
		return p.listClasses(req.Params)
	case "register":
		return p.register(req.Params)
	case "schedule_private":
		return p.schedulePrivate(req.Params)
	default:
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) listClasses(params map[string]any) (*plugin.Result, error) {
	danceType := strings.ToLower(plugin.StringParam(params, "dance_type"))
	list, ok := classes[danceType]
	if !ok {
		return nil, fmt.Errorf("no classes available for %s", danceType)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s classes:\n", danceType)
	data := make([]map[string]any, 0, len(list))
	for _, c := range list {
		fmt.Fprintf(&b, "- %s: %s with %s (%s)\n", c.Level, c.Schedule, c.Instructor, c.Price)
		data = append(data, map[string]any{
			"level":      c.Level,
			"schedule":   c.Schedule,
			"instructor": c.Instructor,
			"price":      c.Price,
		})
	}

	return &plugin.Result{
		Text: strings.TrimRight(b.String(), "\n"),
		Data: map[string]any{"dance_type": danceType, "classes": data},
	}, nil
}

func (p *Plugin) register(params map[string]any) (*plugin.Result, error) {
	danceType := strings.ToLower(plugin.StringParam(params, "dance_type"))
	level := plugin.StringParam(params, "level")
	name := plugin.StringParam(params, "name")
	email := plugin.StringParam(params, "email")

	list, ok := classes[danceType]
	if !ok {
		return nil, fmt.Errorf("invalid dance type: %s", danceType)
	}

	var found *class
	for i := range list {
		if strings.EqualFold(list[i].Level, level) {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("no %s level class available for %s", level, danceType)
	}

	ref, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate registration reference: %w", err)
	}

	p.logger.Info("class registration", "dance_type", danceType, "level", found.Level, "student", name)

	text := fmt.Sprintf("Registered %s for %s %s (%s with %s, %s). Reference: %s",
		name, danceType, found.Level, found.Schedule, found.Instructor, found.Price, ref)

	return &plugin.Result{
		Text: text,
		Data: map[string]any{
			"reference":  ref.String(),
			"dance_type": danceType,
			"level":      found.Level,
			"schedule":   found.Schedule,
			"instructor": found.Instructor,
			"price":      found.Price,
			"student":    map[string]any{"name": name, "email": email},
		},
	}, nil
}

func (p *Plugin) schedulePrivate(params map[string]any) (*plugin.Result, error) {
	danceType := strings.ToLower(plugin.StringParam(params, "dance_type"))
	instructor := plugin.StringParam(params, "instructor")
	date := plugin.StringParam(params, "date")
	duration := plugin.StringParam(params, "duration")
	if duration == "" {
		duration = "1 hour"
	}

	if _, ok := classes[danceType]; !ok {
		return nil, fmt.Errorf("invalid dance type: %s", danceType)
	}

	ref, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate lesson reference: %w", err)
	}

	p.logger.Info("private lesson scheduled", "dance_type", danceType, "instructor", instructor, "date", date)

	text := fmt.Sprintf("Private %s lesson with %s on %s (%s, %s). Reference: %s",
		danceType, instructor, date, duration, privateLessonPrice, ref)

	return &plugin.Result{
		Text: text,
		Data: map[string]any{
			"reference":  ref.String(),
			"dance_type": danceType,
			"instructor": instructor,
			"date":       date,
			"duration":   duration,
			"price":      privateLessonPrice,
		},
	}, nil
}
