package block

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Block{
		{File: "a.py", Line: 3, Col: 5, Content: "a.py:3:5: oops"},
		{File: "b.py", Line: 1, Col: 1, Content: "b.py:1:1: error: bad\n    note: see here"},
		{Content: "Summary: 3 errors"},
		{File: "c.py", Line: 10, Col: 2, EndLine: 10, EndCol: 9, Content: "full span"},
	}
	for _, want := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, want); err != nil {
			t.Fatalf("Encode(%+v) error: %v", want, err)
		}
		got, err := Decode(buf.Bytes())
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if got.File != want.File || got.Line != want.Line || got.Col != want.Col ||
			got.EndLine != want.EndLine || got.EndCol != want.EndCol {
			t.Errorf("round trip location mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestEncodeRejectsReservedBytes(t *testing.T) {
	b := Block{File: "a.py", Line: 1, Content: "bad\x1fcontent"}
	var buf bytes.Buffer
	err := Encode(&buf, b)
	if err == nil {
		t.Fatal("expected error for reserved byte in content")
	}
	var encErr *BlockEncodingError
	if !isBlockEncodingError(err, &encErr) {
		t.Fatalf("expected *BlockEncodingError, got %T", err)
	}
}

func isBlockEncodingError(err error, target **BlockEncodingError) bool {
	e, ok := err.(*BlockEncodingError)
	if ok {
		*target = e
	}
	return ok
}

func TestStripDelimitersRemovesReservedBytes(t *testing.T) {
	b := Block{File: "a.py", Content: "has\x1fseparator\x00null"}
	stripped := StripDelimiters(b)
	if HasReservedBytes(stripped) {
		t.Fatalf("stripped content still has reserved bytes: %q", stripped.Content)
	}
	if stripped.Content != "hasseparatornull" {
		t.Errorf("Content = %q", stripped.Content)
	}
}

func TestInformational(t *testing.T) {
	if !(Block{Content: "note"}).Informational() {
		t.Error("expected informational block with no location")
	}
	if (Block{File: "a.py", Line: 1, Content: "x"}).Informational() {
		t.Error("expected non-informational block with a location")
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte("too:few:fields")); err == nil {
		t.Fatal("expected error for malformed record")
	}
}

func TestDecodeIgnoresTrailingAfterNUL(t *testing.T) {
	data := []byte("a.py\x1f3\x1f5\x1f\x1f\x1fhello\x00garbage-after-nul")
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got.File != "a.py" || got.Line != 3 || got.Col != 5 || got.Content != "hello" {
		t.Errorf("got %+v", got)
	}
}
