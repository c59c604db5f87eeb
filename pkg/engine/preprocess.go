package engine

import (
	"strings"
)

// kwPrefix marks keyword names in the rewritten source.
const kwPrefix = "__kw_"

// preprocessSource rewrites a procedure file into zygomys syntax:
//
//   - ; and ;; comments become // comments.
//   - :option keywords become "__kw_option" strings. Names are lowercased
//     and underscores become hyphens, so :Num_Seeds reads as num-seeds.
//   - A keyword given as the value of an option names an enum member and
//     also loses its hyphens: :neighbourhood :von-neumann yields vonneumann.
//   - Hyphens inside symbols become underscores, since zygomys reads a
//     hyphen as subtraction: (def base-seeds 6) defines base_seeds.
//
// Double-quoted strings are copied untouched.
func preprocessSource(source string) string {
	r := rewriter{src: source, value: []bool{false}}
	r.out.Grow(len(source) + len(source)/4)
	r.run()
	return r.out.String()
}

type rewriter struct {
	src string
	pos int
	out strings.Builder

	// value holds, per open list, whether the next form is the value of
	// the option keyword before it.
	value []bool
}

func (r *rewriter) run() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == '"':
			r.str()
			r.consumed()
		case c == ';':
			r.comment()
		case c == '(' || c == '[':
			r.consumed()
			r.value = append(r.value, false)
			r.emit(1)
		case c == ')' || c == ']':
			if len(r.value) > 1 {
				r.value = r.value[:len(r.value)-1]
			}
			r.emit(1)
		case c == ':' && r.pos+1 < len(r.src) && isLetter(r.src[r.pos+1]):
			r.keyword()
		case isSpace(c):
			r.emit(1)
		default:
			r.atom()
			r.consumed()
		}
	}
}

// emit copies the next n bytes.
func (r *rewriter) emit(n int) {
	r.out.WriteString(r.src[r.pos : r.pos+n])
	r.pos += n
}

// consumed records that a complete form was read in the current list.
func (r *rewriter) consumed() {
	r.value[len(r.value)-1] = false
}

func (r *rewriter) str() {
	end := r.pos + 1
	for end < len(r.src) && r.src[end] != '"' {
		if r.src[end] == '\\' {
			end++
		}
		end++
	}
	r.emit(min(end+1, len(r.src)) - r.pos)
}

func (r *rewriter) comment() {
	r.out.WriteString("//")
	for r.pos < len(r.src) && r.src[r.pos] == ';' {
		r.pos++
	}
	end := strings.IndexByte(r.src[r.pos:], '\n')
	if end < 0 {
		end = len(r.src) - r.pos
	}
	r.emit(end)
}

func (r *rewriter) keyword() {
	start := r.pos + 1
	end := start
	for end < len(r.src) && isWordChar(r.src[end]) {
		end++
	}
	r.pos = end

	name := strings.ToLower(strings.ReplaceAll(r.src[start:end], "_", "-"))

	top := len(r.value) - 1
	if r.value[top] {
		name = strings.ReplaceAll(name, "-", "")
		r.value[top] = false
	} else {
		r.value[top] = true
	}

	r.out.WriteByte('"')
	r.out.WriteString(kwPrefix)
	r.out.WriteString(name)
	r.out.WriteByte('"')
}

// atom copies a symbol, number or operator up to the next delimiter.
func (r *rewriter) atom() {
	start := r.pos
	end := start
	for end < len(r.src) && !isDelimiter(r.src[end]) {
		end++
	}

	for i := start; i < end; i++ {
		c := r.src[i]
		if c == '-' && i > start && i+1 < end && isWordChar(r.src[i-1]) && isLetter(r.src[i+1]) {
			c = '_'
		}
		r.out.WriteByte(c)
	}
	r.pos = end
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDelimiter(c byte) bool {
	return isSpace(c) || c == '(' || c == ')' || c == '[' || c == ']' || c == '"' || c == ';'
}
