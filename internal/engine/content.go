package engine

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Content streams are scanned, not fully parsed: only string operands and
// the operators consuming them matter for text extraction and rewriting.

var errUnterminated = errors.New("unterminated string in content stream")

type operandKind int

const (
	operandOther operandKind = iota
	operandString
	operandArray
)

// operand is one operand preceding an operator, with its byte span in the
// stream. For strings text holds the decoded bytes; for arrays parts holds
// the decoded string elements in order.
type operand struct {
	kind  operandKind
	start int
	end   int
	text  []byte
	parts [][]byte
}

// joined returns the text shown by a string or array operand.
func (o operand) joined() []byte {
	if o.kind == operandString {
		return o.text
	}
	return bytes.Join(o.parts, nil)
}

func isWhitespace(c byte) bool {
	switch c {
	case 0, '\t', '\n', '\f', '\r', ' ':
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// scanContent walks a content stream and calls fn for every operator with
// the operands collected since the previous operator.
func scanContent(data []byte, fn func(op string, args []operand)) error {
	var args []operand
	i := 0
	for i < len(data) {
		c := data[i]
		switch {
		case isWhitespace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			text, end, err := parseLiteral(data, i)
			if err != nil {
				return err
			}
			args = append(args, operand{kind: operandString, start: i, end: end, text: text})
			i = end
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			end := skipDict(data, i)
			args = append(args, operand{start: i, end: end})
			i = end
		case c == '<':
			text, end := parseHex(data, i)
			args = append(args, operand{kind: operandString, start: i, end: end, text: text})
			i = end
		case c == '[':
			arr, err := parseArray(data, i)
			if err != nil {
				return err
			}
			args = append(args, arr)
			i = arr.end
		case c == '/':
			end := skipRegular(data, i+1)
			args = append(args, operand{start: i, end: end})
			i = end
		case isDelimiter(c):
			// Stray closing delimiters carry no text.
			i++
		default:
			end := skipRegular(data, i)
			tok := string(data[i:end])
			if isNumeric(tok) {
				args = append(args, operand{start: i, end: end})
				i = end
				continue
			}
			fn(tok, args)
			args = args[:0]
			i = end
			if tok == "ID" {
				i = skipInlineImage(data, i)
			}
		}
	}
	return nil
}

func skipRegular(data []byte, i int) int {
	for i < len(data) && !isWhitespace(data[i]) && !isDelimiter(data[i]) {
		i++
	}
	return i
}

func isNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

// skipInlineImage skips binary image data following ID up to the EI operator.
func skipInlineImage(data []byte, i int) int {
	if i < len(data) && isWhitespace(data[i]) {
		i++
	}
	for j := i; j+1 < len(data); j++ {
		if data[j] != 'E' || data[j+1] != 'I' {
			continue
		}
		before := j == 0 || isWhitespace(data[j-1])
		after := j+2 >= len(data) || isWhitespace(data[j+2]) || isDelimiter(data[j+2])
		if before && after {
			return j + 2
		}
	}
	return len(data)
}

// skipDict skips a << ... >> dictionary, including nested dictionaries and
// strings that may contain angle brackets.
func skipDict(data []byte, i int) int {
	depth := 0
	for i < len(data) {
		switch {
		case data[i] == '(':
			_, end, err := parseLiteral(data, i)
			if err != nil {
				return len(data)
			}
			i = end
			continue
		case data[i] == '<' && i+1 < len(data) && data[i+1] == '<':
			depth++
			i += 2
			continue
		case data[i] == '>' && i+1 < len(data) && data[i+1] == '>':
			depth--
			i += 2
			if depth == 0 {
				return i
			}
			continue
		}
		i++
	}
	return len(data)
}

func parseArray(data []byte, start int) (operand, error) {
	arr := operand{kind: operandArray, start: start}
	depth := 0
	i := start
	for i < len(data) {
		c := data[i]
		switch {
		case c == '[':
			depth++
			i++
		case c == ']':
			depth--
			i++
			if depth == 0 {
				arr.end = i
				return arr, nil
			}
		case c == '(':
			text, end, err := parseLiteral(data, i)
			if err != nil {
				return arr, err
			}
			arr.parts = append(arr.parts, text)
			i = end
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i = skipDict(data, i)
		case c == '<':
			text, end := parseHex(data, i)
			arr.parts = append(arr.parts, text)
			i = end
		default:
			i++
		}
	}
	return arr, fmt.Errorf("unterminated array at offset %d", start)
}

// parseLiteral decodes a (...) string starting at data[start] and returns the
// decoded bytes and the offset just past the closing parenthesis.
func parseLiteral(data []byte, start int) ([]byte, int, error) {
	var out []byte
	depth := 0
	for i := start; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			if depth > 0 {
				out = append(out, c)
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out, i + 1, nil
			}
			out = append(out, c)
		case '\\':
			if i+1 >= len(data) {
				return nil, len(data), errUnterminated
			}
			i++
			switch e := data[i]; e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				// Line continuation.
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					out = append(out, byte(val))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return nil, len(data), errUnterminated
}

// parseHex decodes a <...> string starting at data[start].
func parseHex(data []byte, start int) ([]byte, int) {
	var out []byte
	var hi byte
	half := false
	i := start + 1
	for ; i < len(data) && data[i] != '>'; i++ {
		v, ok := hexValue(data[i])
		if !ok {
			continue
		}
		if !half {
			hi = v
			half = true
			continue
		}
		out = append(out, hi<<4|v)
		half = false
	}
	if half {
		out = append(out, hi<<4)
	}
	if i < len(data) {
		i++
	}
	return out, i
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// encodeLiteral renders b as a PDF literal string.
func encodeLiteral(b []byte) []byte {
	out := make([]byte, 0, len(b)+2)
	out = append(out, '(')
	for _, c := range b {
		switch c {
		case '(', ')', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		case '\r':
			out = append(out, '\\', 'r')
		case '\t':
			out = append(out, '\\', 't')
		default:
			if c < 0x20 || c > 0x7e {
				out = append(out, fmt.Sprintf("\\%03o", c)...)
				continue
			}
			out = append(out, c)
		}
	}
	return append(out, ')')
}

// textOperand returns the operand shown by a text-showing operator, if op is
// one.
func textOperand(op string, args []operand) (operand, bool) {
	if len(args) == 0 {
		return operand{}, false
	}
	last := args[len(args)-1]
	switch op {
	case "Tj", "'", "\"":
		return last, last.kind == operandString
	case "TJ":
		return last, last.kind == operandArray
	}
	return operand{}, false
}

// breaksLine reports operators that start a new line of extracted text.
func breaksLine(op string) bool {
	switch op {
	case "ET", "T*", "Td", "TD", "Tm", "'", "\"":
		return true
	}
	return false
}

// extractContentText returns the text shown by a content stream.
func extractContentText(data []byte) (string, error) {
	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	err := scanContent(data, func(op string, args []operand) {
		if op == "'" || op == "\"" {
			newline()
		}
		if arg, ok := textOperand(op, args); ok {
			b.Write(arg.joined())
		}
		if breaksLine(op) && op != "'" && op != "\"" {
			newline()
		}
	})
	return strings.TrimRight(b.String(), "\n"), err
}

type edit struct {
	start, end  int
	replacement []byte
}

// rewriteContent applies substitute to the text of every text-showing
// operator and returns the new stream and the number of operators changed.
// A TJ array whose text changes is collapsed into a single string, dropping
// its kerning adjustments.
func rewriteContent(data []byte, substitute func(string) string) ([]byte, int, error) {
	var edits []edit
	err := scanContent(data, func(op string, args []operand) {
		arg, ok := textOperand(op, args)
		if !ok {
			return
		}
		original := arg.joined()
		replaced := substitute(string(original))
		if replaced == string(original) {
			return
		}
		lit := encodeLiteral([]byte(replaced))
		if arg.kind == operandArray {
			lit = append(append([]byte{'['}, lit...), ']')
		}
		edits = append(edits, edit{start: arg.start, end: arg.end, replacement: lit})
	})
	if err != nil {
		return nil, 0, err
	}
	if len(edits) == 0 {
		return data, 0, nil
	}

	var out bytes.Buffer
	out.Grow(len(data))
	last := 0
	for _, e := range edits {
		out.Write(data[last:e.start])
		out.Write(e.replacement)
		last = e.end
	}
	out.Write(data[last:])
	return out.Bytes(), len(edits), nil
}
