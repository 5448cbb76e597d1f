package audit

import (
	"reflect"
	"testing"
)

func TestBuildQueryFilters(t *testing.T) {
	query, args := buildQuery("SELECT 1", "t1", Filter{EntityType: "payroll_record", EntityID: "r1"})

	expected := "SELECT 1 FROM audit_events WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3"
	if query != expected {
		t.Fatalf("unexpected query: %s", query)
	}
	if !reflect.DeepEqual(args, []any{"t1", "payroll_record", "r1"}) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestMarshalOptional(t *testing.T) {
	out, err := marshalOptional(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil payload, got %q (%v)", out, err)
	}
	out, err = marshalOptional(map[string]int{"a": 1})
	if err != nil || string(out) != `{"a":1}` {
		t.Fatalf("unexpected payload %q (%v)", out, err)
	}
}
