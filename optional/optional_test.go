package optional

import (
	"errors"
	"testing"
)

func TestValue(t *testing.T) {
	t.Run("None is empty and Unwrap panics", func(t *testing.T) {
		v := None[float64]()
		if !v.Empty() {
			t.Fatal("expected empty value")
		}
		if got := v.UnwrapOr(-1); got != -1 {
			t.Fatal("unexpected fallback", got)
		}
		defer func() {
			r := recover()
			err, good := r.(error)
			if !good || !errors.Is(err, ErrEmpty) {
				t.Fatal("unexpected panic value", r)
			}
		}()
		_ = v.Unwrap()
	})

	t.Run("Some carries the value", func(t *testing.T) {
		v := Some(7.5)
		if v.Empty() {
			t.Fatal("expected non-empty value")
		}
		val, ok := v.Get()
		if !ok || val != 7.5 {
			t.Fatal("unexpected Get result", val, ok)
		}
		if v.Unwrap() != 7.5 || v.UnwrapOr(0) != 7.5 {
			t.Fatal("unexpected value")
		}
	})
}
