package backend

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
		is   func(error) bool
	}{
		{ErrInitialization("x"), KindInitialization, IsInitialization},
		{ErrConfiguration("x"), KindConfiguration, IsConfiguration},
		{ErrResource("x"), KindResource, IsResource},
		{ErrSchema("x"), KindSchema, IsSchema},
		{ErrComputation("x"), KindComputation, IsComputation},
		{ErrInternal("x"), KindInternal, nil},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.kind {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.kind)
		}
		if tc.is != nil && !tc.is(tc.err) {
			t.Fatalf("predicate rejected %v", tc.err)
		}
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(io.EOF); got != KindInternal {
		t.Fatalf("foreign error classified as %v, want internal", got)
	}
	if IsSchema(nil) {
		t.Fatalf("IsSchema(nil) = true")
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := ErrSchema("decoding input: %w", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause not reachable through errors.Is")
	}
	if !IsSchema(err) {
		t.Fatalf("wrapping lost the kind")
	}
	// a kind survives another layer of fmt wrapping
	outer := fmt.Errorf("execute: %w", err)
	if !IsSchema(outer) {
		t.Fatalf("kind not found through an outer wrap")
	}
}
