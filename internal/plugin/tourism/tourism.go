// Package tourism is a built-in sample plugin: tour listings and
// bookings for a small travel agency. Data is static, like the dance
// school plugin.
package tourism

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kahyalabs/kahya/internal/plugin"
)

// tour is one bookable tour.
type tour struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Price    string `json:"price"` // e.g. "100€"
}

// tours maps location to its catalog.
var tours = map[string][]tour{
	"istanbul": {
		{Name: "Historical Tour", Duration: "4 hours", Price: "100€"},
		{Name: "Bosphorus Cruise", Duration: "2 hours", Price: "50€"},
		{Name: "Food Tour", Duration: "3 hours", Price: "75€"},
	},
	"cappadocia": {
		{Name: "Hot Air Balloon", Duration: "2 hours", Price: "200€"},
		{Name: "Cave Exploration", Duration: "3 hours", Price: "60€"},
		{Name: "ATV Safari", Duration: "2 hours", Price: "45€"},
	},
	"antalya": {
		{Name: "Beach Day", Duration: "6 hours", Price: "40€"},
		{Name: "Ancient Ruins", Duration: "4 hours", Price: "55€"},
		{Name: "Water Park", Duration: "5 hours", Price: "35€"},
	},
}

// Plugin implements the tourism plugin.
type Plugin struct {
	logger *slog.Logger
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{}
}

func (p *Plugin) Name() string { return "tourism" }

func (p *Plugin) Description() string {
	return "Tourism agency: tour listings and bookings (Istanbul, Cappadocia, Antalya)"
}

func (p *Plugin) Actions() []plugin.ActionSpec {
	return []plugin.ActionSpec{
		{
			Name:        "list_tours",
			Description: "List available tours for a location",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "istanbul, cappadocia or antalya",
					},
				},
				"required": []string{"location"},
			},
		},
		{
			Name:        "book_tour",
			Description: "Book a tour for one or more participants",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location":     map[string]any{"type": "string"},
					"tour_name":    map[string]any{"type": "string"},
					"date":         map[string]any{"type": "string"},
					"participants": map[string]any{"type": "integer"},
				},
				"required": []string{"location", "tour_name", "date"},
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
	case "list_tours":
		return p.listTours(req.Params)
	case "book_tour":
		return p.bookTour(req.Params)
	default:
		return nil, fmt.Errorf("unsupported action %q", req.Action)
	}
}

func (p *Plugin) Close() error { return nil }

func (p *Plugin) listTours(params map[string]any) (*plugin.Result, error) {
	location := strings.ToLower(plugin.StringParam(params, "location"))
	list, ok := tours[location]
	if !ok {
		return nil, fmt.Errorf("no tours available for %s", location)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tours in %s:\n", location)
	data := make([]map[string]any, 0, len(list))
	for _, t := range list {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", t.Name, t.Duration, t.Price)
		data = append(data, map[string]any{
			"name":     t.Name,
			"duration": t.Duration,
			"price":    t.Price,
		})
	}

	return &plugin.Result{
		Text: strings.TrimRight(b.String(), "\n"),
		Data: map[string]any{"location": location, "tours": data},
	}, nil
}

func (p *Plugin) bookTour(params map[string]any) (*plugin.Result, error) {
	location := strings.ToLower(plugin.StringParam(params, "location"))
	tourName := plugin.StringParam(params, "tour_name")
	date := plugin.StringParam(params, "date")
	participants := plugin.IntParam(params, "participants")
	if participants <= 0 {
		participants = 1
	}

	list, ok := tours[location]
	if !ok {
		return nil, fmt.Errorf("invalid location: %s", location)
	}

	var found *tour
	for i := range list {
		if strings.EqualFold(list[i].Name, tourName) {
			found = &list[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("tour not found: %s", tourName)
	}

	total, err := totalPrice(found.Price, participants)
	if err != nil {
		return nil, err
	}

	ref, refErr := uuid.NewV7()
	if refErr != nil {
		return nil, fmt.Errorf("generate booking reference: %w", refErr)
	}

	p.logger.Info("tour booked", "location", location, "tour", found.Name, "participants", participants)

	text := fmt.Sprintf("Booked %s in %s on %s for %d participant(s), total %s. Reference: %s",
		found.Name, location, date, participants, total, ref)

	return &plugin.Result{
		Text: text,
		Data: map[string]any{
			"reference":    ref.String(),
			"location":     location,
			"tour":         found.Name,
			"duration":     found.Duration,
			"date":         date,
			"participants": participants,
			"total_price":  total,
		},
	}, nil
}

// totalPrice multiplies a "<number>€" unit price by the participant
// count, keeping the original's %g formatting (120€, not 120.00€).
func totalPrice(unit string, participants int) (string, error) {
	n, err := strconv.ParseFloat(strings.TrimSuffix(unit, "€"), 64)
	if err != nil {
		return "", fmt.Errorf("parse tour price %q: %w", unit, err)
	}
	return fmt.Sprintf("%g€", n*float64(participants)), nil
}
