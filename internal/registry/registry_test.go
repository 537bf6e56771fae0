package registry

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
)

func TestRegisterAndInstall(t *testing.T) {
	Register("test:answer", "constant answer", func(vm *goja.Runtime, module *goja.Object) {
		exports := module.Get("exports").(*goja.Object)
		_ = exports.Set("value", 42)
	})

	if !Exists("test:answer") {
		t.Fatal("module was not registered")
	}

	found := false
	for _, info := range List() {
		if info.Name == "test:answer" {
			found = true
			if info.Description != "constant answer" {
				t.Errorf("Description = %q", info.Description)
			}
		}
	}
	if !found {
		t.Error("List() does not include registered module")
	}

	reg := require.NewRegistry()
	Install(reg)

	vm := goja.New()
	reg.Enable(vm)

	v, err := vm.RunString(`require("test:answer").value`)
	if err != nil {
		t.Fatalf("require failed: %v", err)
	}
	if v.ToInteger() != 42 {
		t.Errorf("value = %d, want 42", v.ToInteger())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	loader := func(*goja.Runtime, *goja.Object) {}
	Register("test:dup", "", loader)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	Register("test:dup", "", loader)
}

func TestListSorted(t *testing.T) {
	loader := func(*goja.Runtime, *goja.Object) {}
	Register("test:zz", "", loader)
	Register("test:aa", "", loader)

	list := List()
	for i := 1; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Fatalf("List() not sorted: %q before %q", list[i-1].Name, list[i].Name)
		}
	}
}
