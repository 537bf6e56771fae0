package engine

import (
	"github.com/dop251/goja"

	"github.com/vovakirdan/scriptworld/internal/entity"
	"github.com/vovakirdan/scriptworld/internal/registry"
)

func init() {
	registry.Register("engine:vec", "Tile vector helpers on [x, y] pairs", loadVec)
	registry.Register("engine:direction", "Compass directions and turns", loadDirection)
}

func vecArg(vm *goja.Runtime, v goja.Value) [2]int {
	var xy []int
	if err := vm.ExportTo(v, &xy); err != nil || len(xy) != 2 {
		panic(vm.NewTypeError("expected an [x, y] pair"))
	}
	return [2]int{xy[0], xy[1]}
}

func loadVec(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("add", func(call goja.FunctionCall) goja.Value {
		a, b := vecArg(vm, call.Argument(0)), vecArg(vm, call.Argument(1))
		return vm.NewArray(a[0]+b[0], a[1]+b[1])
	})
	_ = exports.Set("sub", func(call goja.FunctionCall) goja.Value {
		a, b := vecArg(vm, call.Argument(0)), vecArg(vm, call.Argument(1))
		return vm.NewArray(a[0]-b[0], a[1]-b[1])
	})
	_ = exports.Set("equal", func(call goja.FunctionCall) goja.Value {
		a, b := vecArg(vm, call.Argument(0)), vecArg(vm, call.Argument(1))
		return vm.ToValue(a == b)
	})
	// Manhattan distance, the number of steps between two tiles.
	_ = exports.Set("distance", func(call goja.FunctionCall) goja.Value {
		a, b := vecArg(vm, call.Argument(0)), vecArg(vm, call.Argument(1))
		return vm.ToValue(abs(a[0]-b[0]) + abs(a[1]-b[1]))
	})
	// step returns the tile one move away from pos in dir.
	_ = exports.Set("step", func(call goja.FunctionCall) goja.Value {
		p := vecArg(vm, call.Argument(0))
		d := dirArg(vm, call.Argument(1))
		dx, dy := d.Delta()
		return vm.NewArray(p[0]+dx, p[1]+dy)
	})
}

func dirArg(vm *goja.Runtime, v goja.Value) entity.Direction {
	d, err := entity.ParseDirection(v.String())
	if err != nil {
		panic(vm.NewTypeError(err.Error()))
	}
	return d
}

func loadDirection(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("NORTH", string(entity.North))
	_ = exports.Set("EAST", string(entity.East))
	_ = exports.Set("SOUTH", string(entity.South))
	_ = exports.Set("WEST", string(entity.West))
	_ = exports.Set("ALL", vm.NewArray(string(entity.North), string(entity.East), string(entity.South), string(entity.West)))

	_ = exports.Set("delta", func(call goja.FunctionCall) goja.Value {
		dx, dy := dirArg(vm, call.Argument(0)).Delta()
		return vm.NewArray(dx, dy)
	})
	_ = exports.Set("opposite", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(string(dirArg(vm, call.Argument(0)).Opposite()))
	})
	_ = exports.Set("left", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(string(dirArg(vm, call.Argument(0)).Left()))
	})
	_ = exports.Set("right", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(string(dirArg(vm, call.Argument(0)).Right()))
	})
	// towards picks the direction that closes the larger gap from a to b.
	_ = exports.Set("towards", func(call goja.FunctionCall) goja.Value {
		a, b := vecArg(vm, call.Argument(0)), vecArg(vm, call.Argument(1))
		dx, dy := b[0]-a[0], b[1]-a[1]
		switch {
		case dx == 0 && dy == 0:
			return goja.Null()
		case abs(dx) >= abs(dy) && dx > 0:
			return vm.ToValue(string(entity.East))
		case abs(dx) >= abs(dy):
			return vm.ToValue(string(entity.West))
		case dy > 0:
			return vm.ToValue(string(entity.North))
		default:
			return vm.ToValue(string(entity.South))
		}
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
