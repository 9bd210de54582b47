// Package loop runs a method of a unit type forever under a reloader.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mevdschee/tqreload/pkg/object"
	"github.com/mevdschee/tqreload/pkg/reloader"
	"github.com/mevdschee/tqreload/pkg/wrap"
)

// Loop constructs an instance of typ and calls its mainName method until a
// termination error or ctx ends the loop. Whenever a call produces a fault
// and errName names a method, that method is called with the
// *wrap.ErrorInfo; a truthy result clears the fault so main runs again
// before the next reload.
func Loop(ctx context.Context, r reloader.Reloader, typ *object.Type, mainName, errName string, opts ...wrap.Option) error {
	inst, err := typ.New(nil)
	if err != nil {
		return fmt.Errorf("failed to construct %s: %w", typ.Name(), err)
	}
	mainFn, err := bind(inst, mainName)
	if err != nil {
		return err
	}
	var errFn *object.Method
	if errName != "" {
		if errFn, err = bind(inst, errName); err != nil {
			log.Printf("Error handler %s not found, faults are only logged", errName)
			errFn = nil
		}
	}

	w := wrap.New(mainFn, r, opts...)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := w.Call(ctx)
		if err == nil {
			continue
		}
		if wrap.IsTermination(err) {
			return nil
		}
		var info *wrap.ErrorInfo
		if errFn == nil || !errors.As(err, &info) {
			continue
		}
		res, herr := errFn.Call(info)
		if herr != nil {
			if wrap.IsTermination(herr) {
				return nil
			}
			log.Printf("Error handler %s failed: %v", errName, herr)
			continue
		}
		if truthy(res) {
			w.Reset()
		}
	}
}

func bind(inst *object.Instance, name string) (*object.Method, error) {
	v, err := inst.Get(name)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*object.Method)
	if !ok {
		return nil, &object.AttributeError{Type: inst.Type().Name(), Name: name}
	}
	return m, nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	}
	return true
}
