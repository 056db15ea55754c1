package mcp_test

import (
	"context"
	"strings"
	"testing"

	"github.com/producthelper/producthelper/internal/mcp"
	"github.com/producthelper/producthelper/pkg/models"
)

func nopHandler(_ context.Context, _ map[string]interface{}, _ *mcp.ToolContext) (*models.MCPToolResult, error) {
	return models.TextResult("ok"), nil
}

func TestRegister_DuplicateFails(t *testing.T) {
	reg := mcp.NewRegistry()

	if err := reg.Register(mcp.Tool{Name: "get_document", Handler: nopHandler}); err != nil {
		t.Fatalf("first Register() error: %v", err)
	}
	err := reg.Register(mcp.Tool{Name: "get_document", Handler: nopHandler})
	if err == nil {
		t.Fatal("duplicate Register() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "get_document") {
		t.Errorf("duplicate error %q does not name the tool", err)
	}
}

func TestRegister_RejectsInvalidTools(t *testing.T) {
	reg := mcp.NewRegistry()

	if err := reg.Register(mcp.Tool{Handler: nopHandler}); err == nil {
		t.Error("Register() with empty name succeeded, want error")
	}
	if err := reg.Register(mcp.Tool{Name: "handlerless"}); err == nil {
		t.Error("Register() with nil handler succeeded, want error")
	}
}

func TestRegister_BadSchemaFailsAtStartup(t *testing.T) {
	reg := mcp.NewRegistry()

	err := reg.Register(mcp.Tool{
		Name:    "broken",
		Handler: nopHandler,
		InputSchema: map[string]interface{}{
			"type": "not-a-json-type",
		},
	})
	if err == nil {
		t.Fatal("Register() with uncompilable schema succeeded, want error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("schema error %q does not name the tool", err)
	}
}

func TestList_PreservesRegistrationOrder(t *testing.T) {
	reg := mcp.NewRegistry()

	schema := map[string]interface{}{"type": "object"}
	for _, name := range []string{"search_documents", "get_tech_stack", "list_documents"} {
		if err := reg.Register(mcp.Tool{Name: name, Description: "d:" + name, InputSchema: schema, Handler: nopHandler}); err != nil {
			t.Fatalf("Register(%q) error: %v", name, err)
		}
	}

	infos := reg.List()
	want := []string{"search_documents", "get_tech_stack", "list_documents"}
	if len(infos) != len(want) {
		t.Fatalf("List() returned %d tools, want %d", len(infos), len(want))
	}
	for i, name := range want {
		if infos[i].Name != name {
			t.Errorf("List()[%d] = %q, want %q", i, infos[i].Name, name)
		}
		if infos[i].InputSchema == nil {
			t.Errorf("List()[%d] lost its input schema", i)
		}
	}
	if reg.Len() != 3 {
		t.Errorf("Len() = %d, want 3", reg.Len())
	}
}

func TestGet(t *testing.T) {
	reg := mcp.NewRegistry()
	if err := reg.Register(mcp.Tool{Name: "ping_tool", Handler: nopHandler}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if rt, ok := reg.Get("ping_tool"); !ok || rt.Name != "ping_tool" {
		t.Errorf("Get(ping_tool) = %v, %v, want the registered tool", rt, ok)
	}
	if _, ok := reg.Get("ghost"); ok {
		t.Error("Get(ghost) found an unregistered tool")
	}
}

func TestCheckArgs(t *testing.T) {
	reg := mcp.NewRegistry()
	err := reg.Register(mcp.Tool{
		Name:    "get_document",
		Handler: nopHandler,
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"slug": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"slug"},
		},
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	rt, _ := reg.Get("get_document")

	if err := rt.CheckArgs(map[string]interface{}{"slug": "tech-stack"}); err != nil {
		t.Errorf("CheckArgs(valid) error: %v", err)
	}
	if err := rt.CheckArgs(map[string]interface{}{}); err == nil {
		t.Error("CheckArgs without required slug passed, want violation")
	}
	if err := rt.CheckArgs(nil); err == nil {
		t.Error("CheckArgs(nil) passed, want violation of required slug")
	}
	if err := rt.CheckArgs(map[string]interface{}{"slug": 7}); err == nil {
		t.Error("CheckArgs with numeric slug passed, want type violation")
	}
}

func TestCheckArgs_NoSchemaAcceptsAnything(t *testing.T) {
	reg := mcp.NewRegistry()
	if err := reg.Register(mcp.Tool{Name: "free_form", Handler: nopHandler}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	rt, _ := reg.Get("free_form")

	if err := rt.CheckArgs(nil); err != nil {
		t.Errorf("CheckArgs(nil) error: %v", err)
	}
	if err := rt.CheckArgs(map[string]interface{}{"anything": []interface{}{1, "two"}}); err != nil {
		t.Errorf("CheckArgs(free-form) error: %v", err)
	}
}
