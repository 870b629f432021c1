package contentstream

// textSuppressed lists the operators neutralized by Suppress. BT/ET are
// kept (with no operands they still balance the text object state
// machine) so replaying the list stays well formed.
var textSuppressed = map[OpCode]bool{
	OpBeginText:                  true,
	OpEndText:                    true,
	OpShowText:                   true,
	OpShowSpacedText:             true,
	OpNextLineShowText:           true,
	OpNextLineSetSpacingShowText: true,
	OpSetCharSpacing:             true,
	OpSetWordSpacing:             true,
}

// Suppress returns a new operation list in which every text-painting
// operation keeps its operator but loses its operands, so replaying it
// renders graphics only. Length and operator order are preserved; all
// other operations are passed through unchanged.
func Suppress(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		if textSuppressed[op.Code] {
			out[i] = Operation{Code: op.Code, Name: op.Name}
			continue
		}
		out[i] = op
	}
	return out
}
