package module

import (
	"context"
	"testing"

	"github.com/c360/bridgekit/errors"
	"github.com/c360/bridgekit/value"
)

// brokenModule lets tests declare arbitrary method and event sets to
// exercise descriptor construction.
type brokenModule struct {
	MockModule
	methodOverride []Method
	eventOverride  []EventDef
}

func (b *brokenModule) Methods() []Method  { return b.methodOverride }
func (b *brokenModule) Events() []EventDef { return b.eventOverride }

func noopHandler(_ context.Context, _ []value.Value) (value.Value, error) {
	return value.Null(), nil
}

func TestNewDescriptor_Validation(t *testing.T) {
	valid := Method{
		Name:      "get",
		Signature: value.Signature{Params: []value.Param{value.P("key", value.TypeString)}, Result: value.TypeAny},
		Func:      noopHandler,
	}

	tests := []struct {
		name      string
		namespace string
		methods   []Method
		events    []EventDef
		wantKind  errors.Kind
	}{
		{
			name:      "empty namespace",
			namespace: "",
			methods:   []Method{valid},
			wantKind:  errors.KindUnknownVersion,
		},
		{
			name:      "method without name",
			namespace: "v1",
			methods:   []Method{{Signature: valid.Signature, Func: noopHandler}},
			wantKind:  errors.KindInvalidTarget,
		},
		{
			name:      "method without handler",
			namespace: "v1",
			methods:   []Method{{Name: "get", Signature: valid.Signature}},
			wantKind:  errors.KindInvalidTarget,
		},
		{
			name:      "duplicate method",
			namespace: "v1",
			methods:   []Method{valid, valid},
			wantKind:  errors.KindDuplicateModule,
		},
		{
			name:      "required param after optional",
			namespace: "v1",
			methods: []Method{{
				Name: "watch",
				Signature: value.Signature{Params: []value.Param{
					value.Opt("filter", value.TypeString),
					value.P("key", value.TypeString),
				}},
				Func: noopHandler,
			}},
			wantKind: errors.KindTypeMismatch,
		},
		{
			name:      "event without name",
			namespace: "v1",
			methods:   []Method{valid},
			events:    []EventDef{{Payload: value.TypeMap}},
			wantKind:  errors.KindInvalidTarget,
		},
		{
			name:      "duplicate event",
			namespace: "v1",
			methods:   []Method{valid},
			events:    []EventDef{{Name: "changed"}, {Name: "changed"}},
			wantKind:  errors.KindDuplicateModule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := &brokenModule{
				MockModule:     *NewMockModule("Settings", "marker"),
				methodOverride: tt.methods,
				eventOverride:  tt.events,
			}
			_, err := NewDescriptor(Namespace(tt.namespace), mod)
			if err == nil {
				t.Fatal("expected construction to fail")
			}
			if !errors.HasKind(err, tt.wantKind) {
				t.Errorf("expected kind %v, got %v (%v)", tt.wantKind, errors.KindOf(err), err)
			}
		})
	}
}

func TestNewDescriptor_NilModule(t *testing.T) {
	_, err := NewDescriptor("v1", nil)
	if err == nil {
		t.Fatal("expected error for nil module")
	}
	if !errors.HasKind(err, errors.KindInvalidTarget) {
		t.Errorf("expected InvalidTarget, got %v", errors.KindOf(err))
	}
}

func TestDescriptor_Lookups(t *testing.T) {
	mod := &brokenModule{
		MockModule: *NewMockModule("Settings", "marker"),
		methodOverride: []Method{
			{Name: "set", Signature: value.Signature{Params: []value.Param{
				value.P("key", value.TypeString), value.P("value", value.TypeAny),
			}}, Func: noopHandler},
			{Name: "get", Signature: value.Signature{Params: []value.Param{
				value.P("key", value.TypeString),
			}, Result: value.TypeAny}, Func: noopHandler},
			{Name: "remove", Signature: value.Signature{Params: []value.Param{
				value.P("key", value.TypeString),
			}}, Func: noopHandler},
		},
		eventOverride: []EventDef{
			{Name: "changed", Payload: value.TypeMap},
			{Name: "cleared", Payload: value.TypeNull},
		},
	}

	desc, err := NewDescriptor("v1", mod)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := desc.Method("get"); !ok {
		t.Error("declared method get missing")
	}
	if _, ok := desc.Method("unknown"); ok {
		t.Error("undeclared method should not be found")
	}

	wantMethods := []string{"get", "remove", "set"}
	gotMethods := desc.MethodNames()
	for i, name := range wantMethods {
		if gotMethods[i] != name {
			t.Errorf("MethodNames[%d] = %q, want %q", i, gotMethods[i], name)
		}
	}

	if _, ok := desc.Event("changed"); !ok {
		t.Error("declared event changed missing")
	}
	wantEvents := []string{"changed", "cleared"}
	gotEvents := desc.EventNames()
	for i, name := range wantEvents {
		if gotEvents[i] != name {
			t.Errorf("EventNames[%d] = %q, want %q", i, gotEvents[i], name)
		}
	}
}
