// Package contentstream decodes a page's drawing program into an
// ordered list of operations and provides the text-suppression
// transform used for graphics-only re-rendering.
package contentstream

// OpCode classifies the operators the engine interprets. Everything
// else passes through as OpOther with its operands preserved opaquely.
type OpCode int

const (
	OpOther OpCode = iota

	// text object delimiters
	OpBeginText // BT
	OpEndText   // ET

	// text-show variants
	OpShowText                   // Tj
	OpShowSpacedText             // TJ
	OpNextLineShowText           // '
	OpNextLineSetSpacingShowText // "

	// text state with painting side effects
	OpSetCharSpacing // Tc
	OpSetWordSpacing // Tw

	// text-positioning variants
	OpMoveText           // Td
	OpMoveTextSetLeading // TD
	OpSetTextMatrix      // Tm
	OpNextLine           // T*

	// image painting
	OpPaintXObject // Do
	OpInlineImage  // BI ... ID ... EI
)

// Table maps operator names to codes. It is constructed once and
// injected into scanners and filters; there is no package-level mutable
// lookup.
type Table map[string]OpCode

// NewTable returns the standard operator table.
func NewTable() Table {
	return Table{
		"BT": OpBeginText,
		"ET": OpEndText,
		"Tj": OpShowText,
		"TJ": OpShowSpacedText,
		"'":  OpNextLineShowText,
		"\"": OpNextLineSetSpacingShowText,
		"Tc": OpSetCharSpacing,
		"Tw": OpSetWordSpacing,
		"Td": OpMoveText,
		"TD": OpMoveTextSetLeading,
		"Tm": OpSetTextMatrix,
		"T*": OpNextLine,
		"Do": OpPaintXObject,
		"BI": OpInlineImage,
	}
}

// Code classifies an operator name.
func (t Table) Code(op string) OpCode { return t[op] }
