package canonicalize

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestJCS_Sorting(t *testing.T) {
	// Map with unsorted keys
	input := map[string]interface{}{
		"c": 3,
		"a": 1,
		"b": 2,
	}

	// Expected: {"a":1,"b":2,"c":3}
	expected := `{"a":1,"b":2,"c":3}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_RecursiveSorting(t *testing.T) {
	// Nested map
	input := map[string]interface{}{
		"z": map[string]interface{}{
			"y": "foo",
			"x": "bar",
		},
		"a": 1,
	}

	// Expected keys sorted at valid levels: {"a":1,"z":{"x":"bar","y":"foo"}}
	expected := `{"a":1,"z":{"x":"bar","y":"foo"}}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NoHTMLEscaping(t *testing.T) {
	// String with HTML characters
	input := map[string]string{
		"html": "<script>alert('xss')</script> &",
	}

	// Standard encoding/json produces: {"html":"\u003cscript\u003ealert('xss')\u003c/script\u003e \u0026"}
	// RFC 8785 requires: {"html":"<script>alert('xss')</script> &"}
	expected := `{"html":"<script>alert('xss')</script> &"}`

	b, err := JCS(input)
	if err != nil {
		t.Fatalf("JCS failed: %v", err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_HashStability(t *testing.T) {
	// Two inputs that are semantically identical but constructed differently
	// 1. Map literal
	v1 := map[string]interface{}{"a": 1, "b": 2}

	// 2. Struct converted to map via JSON intermediate
	type S struct {
		B int `json:"b"`
		A int `json:"a"`
	}
	v2 := S{A: 1, B: 2}

	b1, err := JCS(v1)
	if err != nil {
		t.Fatal(err)
	}

	b2, err := JCS(v2)
	if err != nil {
		t.Fatal(err)
	}

	if h1, h2 := HashBytes(b1), HashBytes(b2); h1 != h2 {
		t.Errorf("Hash mismatch for semantically identical inputs: %s != %s", h1, h2)
	}
}

func TestJCS_NumberTypes(t *testing.T) {
	// Ensure json.Number is respected
	input := map[string]interface{}{
		"num": json.Number("123.456"),
	}
	expected := `{"num":123.456}`

	b, err := JCS(input)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestJCS_NumberNormalization(t *testing.T) {
	input := map[string]interface{}{
		"int":   json.Number("1.0"),
		"exp":   json.Number("1e3"),
		"small": 0.000001,
	}

	b, err := JCS(input)
	if err != nil {
		t.Fatal(err)
	}

	expected := `{"exp":1000,"int":1,"small":0.000001}`
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, string(b))
	}
}

func TestTransform_ReformattedInputIsStable(t *testing.T) {
	compact := []byte(`{"b":[1,2],"a":{"y":true,"x":null}}`)
	spaced := []byte("{ \"a\" : { \"x\" : null , \"y\" : true } ,\n \"b\" : [ 1 , 2.0 ] }")

	c1, err := Transform(compact)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Transform(spaced)
	if err != nil {
		t.Fatal(err)
	}

	if string(c1) != string(c2) {
		t.Errorf("Transform differs for equivalent JSON: %s vs %s", c1, c2)
	}
	if HashBytes(c1) != HashBytes(c2) {
		t.Error("hash differs for equivalent JSON")
	}
}

func TestTransform_InvalidJSON(t *testing.T) {
	_, err := Transform([]byte(`{"a":`))
	if !errors.Is(err, ErrNotCanonicalizable) {
		t.Fatalf("expected ErrNotCanonicalizable, got %v", err)
	}
}

func TestJCS_Unmarshalable(t *testing.T) {
	_, err := JCS(map[string]interface{}{"nan": math.NaN()})
	if !errors.Is(err, ErrNotCanonicalizable) {
		t.Fatalf("expected ErrNotCanonicalizable, got %v", err)
	}

	_, err = JCS(map[string]interface{}{"ch": make(chan int)})
	if !errors.Is(err, ErrNotCanonicalizable) {
		t.Fatalf("expected ErrNotCanonicalizable, got %v", err)
	}
}

func TestJCS_RejectsInexactIntegers(t *testing.T) {
	rejected := []interface{}{
		map[string]interface{}{"id": int64(9007199254740993)},
		map[string]interface{}{"id": uint64(18446744073709551615)},
		map[string]interface{}{"id": json.Number("-9007199254740993")},
		[]interface{}{json.Number("123456789012345678901234567890")},
		map[string]interface{}{"big": int64(1 << 60)},
	}
	for _, v := range rejected {
		_, err := JCS(v)
		if !errors.Is(err, ErrInexactNumber) {
			t.Errorf("%v: expected ErrInexactNumber, got %v", v, err)
		}
		if !errors.Is(err, ErrNotCanonicalizable) {
			t.Errorf("%v: expected ErrNotCanonicalizable, got %v", v, err)
		}
	}

	// The shortest spelling of 2^60 is accepted; its exact spelling is not.
	b, err := JCS(map[string]interface{}{
		"max": int64(9007199254740991),
		"min": int64(-9007199254740991),
		"pow": json.Number("1152921504606847000"),
	})
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"max":9007199254740991,"min":-9007199254740991,"pow":1152921504606847000}`
	if string(b) != expected {
		t.Errorf("Expected %s, got %s", expected, b)
	}
}

func TestTransform_CanonicalOutputIsAccepted(t *testing.T) {
	out, err := Transform([]byte(`{"n":1e20,"m":5e-324}`))
	if err != nil {
		t.Fatal(err)
	}
	again, err := Transform(out)
	if err != nil {
		t.Fatalf("canonical output rejected: %s: %v", out, err)
	}
	if string(out) != string(again) {
		t.Errorf("Transform not idempotent: %s vs %s", out, again)
	}
}
