package contentstream

import (
	"testing"
)

func TestSuppressClearsTextOperands(t *testing.T) {
	in := `BT /F1 12 Tf 1 0 0 1 50 700 Tm 0.2 Tc 0.5 Tw (line one) Tj ` +
		`[(a) -120 (b)] TJ (next) ' 1 2 (both) " 0 -14 Td T* ET /Im1 Do`
	ops := scanAll(t, in)
	out := Suppress(ops)

	if len(out) != len(ops) {
		t.Fatalf("length changed: %d != %d", len(out), len(ops))
	}
	for i := range ops {
		if out[i].Name != ops[i].Name || out[i].Code != ops[i].Code {
			t.Fatalf("op %d reordered: %q != %q", i, out[i].Name, ops[i].Name)
		}
	}

	suppressed := map[string]bool{
		"BT": true, "ET": true, "Tj": true, "TJ": true,
		"'": true, "\"": true, "Tc": true, "Tw": true,
	}
	for _, op := range out {
		if suppressed[op.Name] {
			if len(op.Operands) != 0 {
				t.Fatalf("%s kept operands %v", op.Name, op.Operands)
			}
			continue
		}
		// Everything else passes through untouched, operands included.
		switch op.Name {
		case "Tf", "Tm", "Td", "Do":
			if len(op.Operands) == 0 {
				t.Fatalf("%s lost its operands", op.Name)
			}
		}
	}
}

func TestSuppressDoesNotMutateInput(t *testing.T) {
	ops := scanAll(t, "(x) Tj")
	_ = Suppress(ops)
	if len(ops[0].Operands) != 1 {
		t.Fatal("input list mutated")
	}
}

func TestSuppressedStreamSerializesCleanly(t *testing.T) {
	ops := scanAll(t, "q (gone) Tj /Im1 Do Q")
	out := Serialize(Suppress(ops))
	back, err := ScanAll(out, NewTable())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if len(back) != 4 {
		t.Fatalf("ops = %v", opNames(back))
	}
	if back[1].Name != "Tj" || len(back[1].Operands) != 0 {
		t.Fatalf("Tj = %+v", back[1])
	}
	if back[2].Name != "Do" || len(back[2].Operands) != 1 {
		t.Fatalf("Do = %+v", back[2])
	}
}
