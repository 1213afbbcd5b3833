package handler

import (
	"context"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/jdziat/jobsuite/pkg/job"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	updaterType = reflect.TypeOf((*job.Updater)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler holds metadata about a registered job function.
type Handler struct {
	Fn         reflect.Value
	ArgsType   reflect.Type
	HasUpdater bool
}

// NewHandler creates a Handler from a function.
// The function must have one of the signatures
//
//	func(ctx context.Context, u job.Updater, args T) error
//	func(ctx context.Context, u job.Updater) error
//	func(ctx context.Context, args T) error
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)

	// Check for typed nil (e.g., var fn func() = nil)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()
	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}

	numIn := fnType.NumIn()
	if numIn < 2 || numIn > 3 {
		return nil, fmt.Errorf("handler must have 2-3 arguments")
	}
	if fnType.In(0) != contextType {
		return nil, fmt.Errorf("handler's first argument must be context.Context")
	}

	h := &Handler{Fn: fnVal}
	argIdx := 1
	if fnType.In(1) == updaterType {
		h.HasUpdater = true
		argIdx = 2
	}
	if argIdx < numIn {
		h.ArgsType = fnType.In(argIdx)
	} else if !h.HasUpdater {
		return nil, fmt.Errorf("handler must take job.Updater or an args value")
	}
	if numIn == 3 && !h.HasUpdater {
		return nil, fmt.Errorf("handler's second argument must be job.Updater")
	}

	if fnType.NumOut() != 1 || fnType.Out(0) != errorType {
		return nil, fmt.Errorf("handler must return error")
	}

	return h, nil
}

// Decode converts the raw arguments of a definition into the handler's
// argument type and validates them. Unknown keys are rejected.
func (h *Handler) Decode(raw map[string]any) (reflect.Value, error) {
	if h.ArgsType == nil {
		if len(raw) > 0 {
			return reflect.Value{}, fmt.Errorf("handler takes no arguments")
		}
		return reflect.Value{}, nil
	}

	argPtr := reflect.New(h.ArgsType)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           argPtr.Interface(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := dec.Decode(raw); err != nil {
		return reflect.Value{}, fmt.Errorf("failed to decode args: %w", err)
	}

	target := argPtr
	if h.ArgsType.Kind() == reflect.Pointer {
		if argPtr.Elem().IsNil() {
			argPtr.Elem().Set(reflect.New(h.ArgsType.Elem()))
		}
		target = argPtr.Elem()
	}
	if target.Elem().Kind() == reflect.Struct {
		if err := validate.Struct(target.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("invalid args: %w", err)
		}
	}
	return argPtr.Elem(), nil
}

// Call runs the handler with decoded arguments.
func (h *Handler) Call(ctx context.Context, u job.Updater, args reflect.Value) error {
	// Defensive check: ensure handler function is valid
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return fmt.Errorf("handler function is nil or invalid")
	}

	in := []reflect.Value{reflect.ValueOf(ctx)}
	if h.HasUpdater {
		in = append(in, reflect.ValueOf(&u).Elem())
	}
	if h.ArgsType != nil {
		in = append(in, args)
	}

	results := h.Fn.Call(in)
	if !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// Bind returns a job.Executor that calls h with args decoded from raw.
func (h *Handler) Bind(raw map[string]any) (job.Executor, error) {
	args, err := h.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &bound{h: h, args: args}, nil
}

type bound struct {
	h    *Handler
	args reflect.Value
}

func (b *bound) Execute(ctx context.Context, u job.Updater) error {
	return b.h.Call(ctx, u, b.args)
}
