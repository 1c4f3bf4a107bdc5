package tool

import (
	"context"
	"errors"
	"testing"
)

func noopFunc(ctx context.Context, ac *ActionContext, args map[string]any) (any, error) {
	return nil, nil
}

func testCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	cat := NewCatalogue()

	descriptors := []Descriptor{
		{Name: TerminateToolName, Terminal: true, Func: noopFunc},
		{Name: "search", Tags: []string{"web"}, Func: noopFunc},
		{Name: "fetch_page", Tags: []string{"web"}, Func: noopFunc},
		{Name: "todo_write", Tags: []string{"planning"}, Func: noopFunc},
	}
	for _, d := range descriptors {
		if err := cat.Register(d); err != nil {
			t.Fatalf("Register(%s) failed: %v", d.Name, err)
		}
	}
	return cat
}

func TestNewRegistrySelectsByTagAndName(t *testing.T) {
	cat := testCatalogue(t)

	reg := NewRegistry(cat, []string{"web"}, []string{"todo_write"})

	for _, want := range []string{"search", "fetch_page", "todo_write"} {
		if !reg.Has(want) {
			t.Errorf("Expected %s in registry", want)
		}
	}
	// terminate matched neither rule, so it is not in the snapshot...
	if reg.Has(TerminateToolName) {
		t.Error("Expected terminate to be excluded by selection rules")
	}
	// ...but the side slot captured it.
	if err := reg.RegisterTerminate(); err != nil {
		t.Fatalf("RegisterTerminate failed: %v", err)
	}
	if !reg.HasTerminator() {
		t.Error("Expected terminator after RegisterTerminate")
	}
}

func TestRegisterTerminateMissing(t *testing.T) {
	cat := NewCatalogue()
	_ = cat.Register(Descriptor{Name: "search", Func: noopFunc})

	reg := NewRegistry(cat, nil, []string{"search"})

	err := reg.RegisterTerminate()
	if !errors.Is(err, ErrMissingTerminator) {
		t.Errorf("Expected ErrMissingTerminator, got %v", err)
	}
}

func TestGetUnknownTool(t *testing.T) {
	reg := NewRegistry(testCatalogue(t), []string{"web"}, nil)

	_, err := reg.Get("frobnicate")
	if err == nil {
		t.Fatal("Expected error for unknown tool")
	}
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Expected ErrUnknownTool sentinel, got %v", err)
	}

	var unknownErr *UnknownToolError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Expected *UnknownToolError, got %T", err)
	}
	if unknownErr.Name != "frobnicate" {
		t.Errorf("Expected tool name in error, got %q", unknownErr.Name)
	}
}

func TestReplaceWithKeepsTerminator(t *testing.T) {
	cat := testCatalogue(t)
	reg := NewRegistry(cat, []string{"web", "planning"}, []string{TerminateToolName})

	if err := reg.RegisterTerminate(); err != nil {
		t.Fatalf("RegisterTerminate failed: %v", err)
	}

	reg.ReplaceWith([]string{"search"})

	names := reg.Names()
	if len(names) != 2 {
		t.Fatalf("Expected 2 tools after replace, got %v", names)
	}
	if !reg.Has("search") || !reg.Has(TerminateToolName) {
		t.Errorf("Expected search and terminate, got %v", names)
	}
}

func TestReplaceWithIgnoresUnknownNames(t *testing.T) {
	reg := NewRegistry(testCatalogue(t), []string{"web"}, []string{TerminateToolName})

	reg.ReplaceWith([]string{"search", "made_up_tool"})

	if reg.Has("made_up_tool") {
		t.Error("Expected unknown names to be ignored")
	}
	if !reg.Has("search") {
		t.Error("Expected search to survive the replace")
	}
}

func TestRegisterByName(t *testing.T) {
	reg := NewRegistry(testCatalogue(t), nil, nil)

	if reg.Len() != 0 {
		t.Fatalf("Expected empty registry, got %d tools", reg.Len())
	}

	if ok := reg.RegisterByName("search"); !ok {
		t.Error("Expected search to be found in catalogue")
	}
	if ok := reg.RegisterByName("nonexistent"); ok {
		t.Error("Expected nonexistent to be missing from catalogue")
	}
	if !reg.Has("search") {
		t.Error("Expected search registered")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	reg := NewRegistry(testCatalogue(t), []string{"web"}, nil)

	snap := reg.Snapshot()
	delete(snap, "search")

	if !reg.Has("search") {
		t.Error("Expected registry unaffected by snapshot mutation")
	}
}

func TestCatalogueByTag(t *testing.T) {
	cat := testCatalogue(t)

	web := cat.ByTag("web")
	if len(web) != 2 {
		t.Fatalf("Expected 2 web tools, got %d", len(web))
	}
	// Sorted by name.
	if web[0].Name != "fetch_page" || web[1].Name != "search" {
		t.Errorf("Expected sorted order, got %s, %s", web[0].Name, web[1].Name)
	}
}

func TestCatalogueRejectsInvalid(t *testing.T) {
	cat := NewCatalogue()

	if err := cat.Register(Descriptor{Func: noopFunc}); err == nil {
		t.Error("Expected error for unnamed descriptor")
	}
	if err := cat.Register(Descriptor{Name: "broken"}); err == nil {
		t.Error("Expected error for descriptor without callable")
	}
}
