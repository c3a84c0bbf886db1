package mcp

import (
	"context"
	"fmt"
	"testing"
)

func TestToolRegistry_RegisterAndGet(t *testing.T) {
	registry := NewToolRegistry()
	tool := Tool{
		Name:        "echo",
		Description: "Echoes its input",
		Handler:     func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params, nil },
	}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, ok := registry.Get("echo")
	if !ok {
		t.Fatal("expected echo to be registered")
	}
	if got.Description != tool.Description {
		t.Errorf("description mismatch: got %q", got.Description)
	}
	if got.Parameters.Type != "object" {
		t.Errorf("expected default parameter type object, got %q", got.Parameters.Type)
	}
}

func TestToolRegistry_DuplicateNameRejected(t *testing.T) {
	registry := NewToolRegistry()
	tool := Tool{Name: "dup", Description: "first", Handler: noopHandler}
	if err := registry.Register(tool); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := registry.Register(tool); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestToolRegistry_ValidationRejectsIncompleteTools(t *testing.T) {
	cases := []Tool{
		{Name: "", Description: "x", Handler: noopHandler},
		{Name: "x", Description: "", Handler: noopHandler},
		{Name: "x", Description: "x", Handler: nil},
	}
	for i, tool := range cases {
		registry := NewToolRegistry()
		if err := registry.Register(tool); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestToolRegistry_ConcurrentRegistration(t *testing.T) {
	registry := NewToolRegistry()
	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(id int) {
			done <- registry.Register(Tool{
				Name:        fmt.Sprintf("concurrent.%d", id),
				Description: "test",
				Handler:     noopHandler,
			})
		}(i)
	}
	for i := 0; i < 20; i++ {
		if err := <-done; err != nil {
			t.Errorf("unexpected registration error: %v", err)
		}
	}
	if len(registry.List()) != 20 {
		t.Errorf("expected 20 tools, got %d", len(registry.List()))
	}
}

func noopHandler(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return nil, nil
}
