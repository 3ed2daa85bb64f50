package internal

import (
	"bytes"
	"errors"
	"testing"
)

func TestReassemblyWholeMessage(t *testing.T) {
	var r reassembly

	steps := []Frame{
		Fragment(KindBinary, []byte{1, 2}),
		Continuation([]byte{3}),
		Finish([]byte{4}),
	}

	for i, f := range steps[:2] {
		_, complete, err := r.push(f)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if complete {
			t.Fatalf("step %d: completed early", i)
		}
	}

	whole, complete, err := r.push(steps[2])
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !complete {
		t.Fatalf("finish did not complete")
	}
	if whole.Kind != KindBinary || !bytes.Equal(whole.Payload, []byte{1, 2, 3, 4}) {
		t.Fatalf("got %s % x", whole.Kind, whole.Payload)
	}
	if r.active {
		t.Fatalf("slot still occupied after finish")
	}
}

func TestReassemblyKindCarriedFromFragment(t *testing.T) {
	var r reassembly
	if _, _, err := r.push(Fragment(KindText, []byte("he"))); err != nil {
		t.Fatalf("fragment: %v", err)
	}
	whole, complete, err := r.push(Finish([]byte("llo")))
	if err != nil || !complete {
		t.Fatalf("finish: complete=%v err=%v", complete, err)
	}
	if whole.Kind != KindText || string(whole.Payload) != "hello" {
		t.Fatalf("got %s %q", whole.Kind, whole.Payload)
	}
}

func TestReassemblyViolations(t *testing.T) {
	cases := []struct {
		name  string
		setup []Frame
		bad   Frame
		want  string
	}{
		{
			"fragment while occupied",
			[]Frame{Fragment(KindText, []byte("a"))},
			Fragment(KindText, []byte("b")),
			"Endpoint tried to start a fragment without finishing another",
		},
		{
			"whole text frame while occupied",
			[]Frame{Fragment(KindBinary, []byte{1})},
			Text("interloper"),
			"Endpoint sent a data frame while a fragmented message was in progress",
		},
		{
			"whole binary frame while occupied",
			[]Frame{Fragment(KindText, []byte("a"))},
			Binary([]byte{2}),
			"Endpoint sent a data frame while a fragmented message was in progress",
		},
		{
			"continuation while empty",
			nil,
			Continuation([]byte("x")),
			"Endpoint sent a continuation frame without starting a fragment",
		},
		{
			"finish while empty",
			nil,
			Finish([]byte("x")),
			"Endpoint sent a continuation frame without starting a fragment",
		},
	}

	for _, tc := range cases {
		var r reassembly
		for _, f := range tc.setup {
			if _, _, err := r.push(f); err != nil {
				t.Fatalf("%s: setup: %v", tc.name, err)
			}
		}
		_, _, err := r.push(tc.bad)
		var pe *FrameParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: err %v, want FrameParseError", tc.name, err)
		}
		if pe.Code != StatusProtocolError {
			t.Fatalf("%s: code %d want 1002", tc.name, pe.Code)
		}
		if pe.Reason != tc.want {
			t.Fatalf("%s: reason %q want %q", tc.name, pe.Reason, tc.want)
		}
	}
}

func TestReassemblyPassesWholeFramesThrough(t *testing.T) {
	var r reassembly
	f, complete, err := r.push(Text("hi"))
	if err != nil || !complete {
		t.Fatalf("complete=%v err=%v", complete, err)
	}
	if f.Kind != KindText || string(f.Payload) != "hi" {
		t.Fatalf("got %s %q", f.Kind, f.Payload)
	}
}
