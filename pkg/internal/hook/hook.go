// Package hook dispatches optional payload lifecycle hooks by method name.
package hook

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jdziat/delayed/pkg/core"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	jobType     = reflect.TypeOf((*core.Job)(nil))
)

// Has reports whether target declares a method called name.
func Has(target any, name string) bool {
	if target == nil {
		return false
	}
	return reflect.ValueOf(target).MethodByName(name).IsValid()
}

// Call runs target's hook method called name, if it has one.
//
// The method's declared parameters pick the calling convention:
//
//	func()                                  zero-argument form
//	func(job *core.Job, extra...)           job form
//	func(ctx context.Context, job *core.Job, extra...)
//
// Trailing extras the method does not declare are dropped. The method may
// return nothing or a single error. A returned *core.DeserializationError is
// treated as if the hook did not exist. A panic in the hook is recovered and
// returned as a *core.PanicError.
func Call(ctx context.Context, target any, name string, job *core.Job, extra ...any) (err error) {
	if target == nil {
		return nil
	}
	m := reflect.ValueOf(target).MethodByName(name)
	if !m.IsValid() {
		return nil
	}

	args, err := buildArgs(m.Type(), ctx, job, extra)
	if err != nil {
		return fmt.Errorf("%w: %T.%s: %v", core.ErrInvalidHookMethod, target, name, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &core.PanicError{Value: r}
		}
	}()

	results := m.Call(args)
	if len(results) == 0 || results[0].IsNil() {
		return nil
	}
	hookErr := results[0].Interface().(error)
	if core.IsDeserializationError(hookErr) {
		return nil
	}
	return hookErr
}

func buildArgs(t reflect.Type, ctx context.Context, job *core.Job, extra []any) ([]reflect.Value, error) {
	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) != errorType {
			return nil, fmt.Errorf("hook must return nothing or error")
		}
	default:
		return nil, fmt.Errorf("hook must return nothing or error")
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic hooks are not supported")
	}

	numIn := t.NumIn()
	if numIn == 0 {
		return nil, nil
	}

	args := make([]reflect.Value, 0, numIn)
	idx := 0
	if t.In(0) == contextType {
		if ctx == nil {
			ctx = context.Background()
		}
		args = append(args, reflect.ValueOf(ctx))
		idx++
	}
	if idx >= numIn || t.In(idx) != jobType {
		return nil, fmt.Errorf("hook must accept *core.Job after the optional context")
	}
	args = append(args, reflect.ValueOf(job))
	idx++

	remaining := numIn - idx
	if remaining > len(extra) {
		return nil, fmt.Errorf("hook declares %d extra arguments, %d available", remaining, len(extra))
	}
	for i := 0; i < remaining; i++ {
		want := t.In(idx + i)
		if extra[i] == nil {
			if !nillable(want) {
				return nil, fmt.Errorf("argument %d: nil is not a valid %s", idx+i, want)
			}
			args = append(args, reflect.Zero(want))
			continue
		}
		v := reflect.ValueOf(extra[i])
		if !v.Type().AssignableTo(want) {
			return nil, fmt.Errorf("argument %d: %s is not assignable to %s", idx+i, v.Type(), want)
		}
		args = append(args, v)
	}
	return args, nil
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
