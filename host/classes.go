package host

import (
	"context"
	"fmt"

	"github.com/wippyai/classbridge"
	"github.com/wippyai/classbridge/errors"
	"github.com/wippyai/classbridge/variant"
)

func noop(context.Context, *Object, []variant.Variant) (variant.Variant, error) {
	return variant.Variant{}, nil
}

// StandardClasses returns the built-in class tree, parents before children:
//
//	Object
//	├── RefCounted ── Resource
//	└── Node
//	    ├── Timer
//	    ├── Node2D ── Sprite2D
//	    └── Node3D ── CharacterBody3D
func StandardClasses() []ClassInfo {
	return []ClassInfo{
		{
			Name: classbridge.RootClass,
			Methods: map[string]DefaultFunc{
				"_notification": noop,
				"_to_string": func(_ context.Context, o *Object, _ []variant.Variant) (variant.Variant, error) {
					return variant.FromString(fmt.Sprintf("<%s#%d>", o.Class(), o.ID)), nil
				},
				"get_class": func(_ context.Context, o *Object, _ []variant.Variant) (variant.Variant, error) {
					return variant.FromString(o.Class()), nil
				},
				"get_instance_id": func(_ context.Context, o *Object, _ []variant.Variant) (variant.Variant, error) {
					return variant.FromObject(o.ID), nil
				},
			},
		},
		{
			Name:       "RefCounted",
			Parent:     classbridge.RootClass,
			RefCounted: true,
		},
		{
			Name:       "Resource",
			Parent:     "RefCounted",
			Properties: map[string]variant.Variant{"resource_name": variant.FromString("")},
		},
		{
			Name:   "Node",
			Parent: classbridge.RootClass,
			Properties: map[string]variant.Variant{
				"name":         variant.FromString(""),
				"process_mode": variant.FromInt(0),
			},
			Methods: map[string]DefaultFunc{
				"_ready":           noop,
				"_process":         noop,
				"_physics_process": noop,
				"_enter_tree":      noop,
				"_exit_tree":       noop,
				"_input":           noop,
				"get_name": func(_ context.Context, o *Object, _ []variant.Variant) (variant.Variant, error) {
					return o.Prop("name"), nil
				},
			},
		},
		{
			Name:   "Timer",
			Parent: "Node",
			Properties: map[string]variant.Variant{
				"wait_time": variant.FromFloat(1),
				"one_shot":  variant.FromBool(false),
			},
		},
		{
			Name:   "Node2D",
			Parent: "Node",
			Properties: map[string]variant.Variant{
				"position": variant.FromVec2(variant.Vec2{}),
				"rotation": variant.FromFloat(0),
			},
		},
		{
			Name:       "Sprite2D",
			Parent:     "Node2D",
			Properties: map[string]variant.Variant{"modulate": variant.FromColor(variant.RGBA{R: 1, G: 1, B: 1, A: 1})},
		},
		{
			Name:   "Node3D",
			Parent: "Node",
			Properties: map[string]variant.Variant{
				"position": variant.FromVec3(variant.Vec3{}),
				"visible":  variant.FromBool(true),
			},
			Methods: map[string]DefaultFunc{
				"translate": translate,
			},
		},
		{
			Name:       "CharacterBody3D",
			Parent:     "Node3D",
			Properties: map[string]variant.Variant{"velocity": variant.FromVec3(variant.Vec3{})},
		},
	}
}

func translate(_ context.Context, o *Object, args []variant.Variant) (variant.Variant, error) {
	if len(args) != 1 {
		return variant.Variant{}, errors.InvalidInput(errors.PhaseHost, "translate takes one vector3")
	}
	d, ok := args[0].AsVec3()
	if !ok {
		return variant.Variant{}, errors.TypeMismatch([]string{"translate", "offset"}, "vector3", args[0].Tag().String())
	}
	p, _ := o.Prop("position").AsVec3()
	p = variant.Vec3{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
	o.SetProp("position", variant.FromVec3(p))
	return variant.FromVec3(p), nil
}
