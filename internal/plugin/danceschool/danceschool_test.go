package danceschool

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kahyalabs/kahya/internal/plugin"
)

func testPlugin(t *testing.T) *Plugin {
	t.Helper()
	p := New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := p.Init(context.Background(), plugin.Settings{}, logger); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func TestListClasses(t *testing.T) {
	p := testPlugin(t)

	res, err := p.Execute(context.Background(), plugin.Request{
		Action: "list_classes",
		Params: map[string]any{"dance_type": "Salsa"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, want := range []string{"Beginner", "Monday 19:00", "Maria", "30€", "Carlos", "Juan"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("Text missing %q:\n%s", want, res.Text)
		}
	}

	list, ok := res.Data["classes"].([]map[string]any)
	if !ok || len(list) != 3 {
		t.Errorf("expected 3 salsa classes, got %v", res.Data["classes"])
	}
}

func TestListClassesUnknownType(t *testing.T) {
	p := testPlugin(t)

	_, err := p.Execute(context.Background(), plugin.Request{
		Action: "list_classes",
		Params: map[string]any{"dance_type": "ballet"},
	})
	if err == nil {
		t.Fatal("expected error for unknown dance type")
	}
	if !strings.Contains(err.Error(), "no classes available for ballet") {
		t.Errorf("error = %v", err)
	}
}

func TestRegister(t *testing.T) {
	p := testPlugin(t)

	res, err := p.Execute(context.Background(), plugin.Request{
		Action: "register",
		Params: map[string]any{
			"dance_type": "tango",
			"level":      "advanced", // case-insensitive match
			"name":       "Ayşe",
			"email":      "ayse@example.com",
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(res.Text, "Elena") || !strings.Contains(res.Text, "Saturday 15:00") {
		t.Errorf("Text = %q", res.Text)
	}
	if ref, _ := res.Data["reference"].(string); ref == "" {
		t.Error("registration has no reference")
	}
}

func TestRegisterUnknownLevel(t *testing.T) {
	p := testPlugin(t)

	_, err := p.Execute(context.Background(), plugin.Request{
		Action: "register",
		Params: map[string]any{
			"dance_type": "bachata",
			"level":      "Advanced", // bachata has no advanced class
			"name":       "Mehmet",
		},
	})
	if err == nil {
		t.Fatal("expected error for missing level")
	}
	if !strings.Contains(err.Error(), "no Advanced level class available for bachata") {
		t.Errorf("error = %v", err)
	}
}

func TestSchedulePrivate(t *testing.T) {
	p := testPlugin(t)

	res, err := p.Execute(context.Background(), plugin.Request{
		Action: "schedule_private",
		Params: map[string]any{
			"dance_type": "salsa",
			"instructor": "Maria",
			"date":       "2026-09-01",
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(res.Text, "60€") {
		t.Errorf("Text missing base price: %q", res.Text)
	}
	if res.Data["duration"] != "1 hour" {
		t.Errorf("duration = %v, want default 1 hour", res.Data["duration"])
	}
}

func TestUnsupportedAction(t *testing.T) {
	p := testPlugin(t)

	_, err := p.Execute(context.Background(), plugin.Request{Action: "teleport"})
	if err == nil || !strings.Contains(err.Error(), `unsupported action "teleport"`) {
		t.Errorf("error = %v", err)
	}
}
