package fec

import "testing"

func TestEncodeReconstruct(t *testing.T) {
	enc, err := NewEncoder(4, 2)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	data := [][]byte{
		[]byte("aaaa"),
		[]byte("bbbb"),
		[]byte("cccc"),
		[]byte("dddd"),
	}
	parity, err := enc.Encode(data)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(parity) != 2 {
		t.Fatalf("got %d parity shards, want 2", len(parity))
	}

	all := append(append([][]byte{}, data...), parity...)
	// Drop two data shards; within the r=2 budget.
	all[0] = nil
	all[2] = nil

	dec, err := NewDecoder(4, 2)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if err := dec.Reconstruct(all); err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	if string(all[0]) != "aaaa" || string(all[2]) != "cccc" {
		t.Fatalf("reconstruction mismatch: %q %q", all[0], all[2])
	}
}

func TestReconstructFailsBeyondBudget(t *testing.T) {
	enc, _ := NewEncoder(4, 2)
	data := [][]byte{[]byte("aaaa"), []byte("bbbb"), []byte("cccc"), []byte("dddd")}
	parity, _ := enc.Encode(data)
	all := append(append([][]byte{}, data...), parity...)
	all[0], all[1], all[2] = nil, nil, nil

	dec, _ := NewDecoder(4, 2)
	if err := dec.Reconstruct(all); err == nil {
		t.Fatal("expected reconstruction to fail with 3 missing shards and r=2")
	}
}
