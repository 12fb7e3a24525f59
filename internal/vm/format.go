package vm

import (
	"io"
	"strconv"
)

// htmlEscapes maps the five characters the HTML escaper rewrites. The
// numeric entities for quotes keep the output safe inside both attribute
// quoting styles.
var htmlEscapes = map[byte]string{
	'&':  "&amp;",
	'<':  "&lt;",
	'>':  "&gt;",
	'"':  "&#34;",
	'\'': "&#39;",
}

// WriteEscaped writes b to w, HTML-escaping &<>"'.
func WriteEscaped(w io.Writer, b []byte) error {
	start := 0
	for i := 0; i < len(b); i++ {
		esc, ok := htmlEscapes[b[i]]
		if !ok {
			continue
		}
		if start < i {
			if _, err := w.Write(b[start:i]); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, esc); err != nil {
			return err
		}
		start = i + 1
	}
	if start < len(b) {
		if _, err := w.Write(b[start:]); err != nil {
			return err
		}
	}
	return nil
}

// Write renders v to w. Strings and buffers are written raw unless escape
// is set, in which case they are HTML-escaped. Collections recurse with
// the same escape flag; iterators render as placeholders.
func Write(w io.Writer, v Value, escape bool) error {
	switch v.Type {
	case ValNull:
		_, err := io.WriteString(w, "null")
		return err

	case ValInt:
		_, err := io.WriteString(w, strconv.FormatInt(v.AsInt(), 10))
		return err

	case ValFloat:
		// Shortest representation that round-trips.
		_, err := io.WriteString(w, strconv.FormatFloat(v.AsFloat(), 'g', -1, 64))
		return err

	case ValBool:
		s := "false"
		if v.AsBool() {
			s = "true"
		}
		_, err := io.WriteString(w, s)
		return err

	case ValStr:
		return writeBytes(w, v.Str, escape)

	case ValRef:
		return writeObject(w, v.Obj, escape)
	}
	return nil
}

func writeBytes(w io.Writer, b []byte, escape bool) error {
	if escape {
		return WriteEscaped(w, b)
	}
	_, err := w.Write(b)
	return err
}

func writeObject(w io.Writer, o *Object, escape bool) error {
	switch o.Type {
	case ObjBuffer:
		return writeBytes(w, o.Buf, escape)

	case ObjList:
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		for i, elem := range o.List {
			if i > 0 {
				if _, err := io.WriteString(w, ", "); err != nil {
					return err
				}
			}
			if err := Write(w, elem, escape); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "]")
		return err

	case ObjMap:
		if _, err := io.WriteString(w, "{"); err != nil {
			return err
		}
		first := true
		var werr error
		o.Map.Range(func(k Key, v Value) bool {
			if !first {
				if _, werr = io.WriteString(w, ", "); werr != nil {
					return false
				}
			}
			first = false
			if werr = Write(w, k.Value(), escape); werr != nil {
				return false
			}
			if _, werr = io.WriteString(w, ": "); werr != nil {
				return false
			}
			werr = Write(w, v, escape)
			return werr == nil
		})
		if werr != nil {
			return werr
		}
		_, err := io.WriteString(w, "}")
		return err

	case ObjMapEntry:
		if err := Write(w, o.EntryKey.Value(), escape); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ": "); err != nil {
			return err
		}
		return Write(w, *o.EntryValue, escape)

	case ObjListIter:
		_, err := io.WriteString(w, "[...]")
		return err

	case ObjMapIter:
		_, err := io.WriteString(w, "{...}")
		return err
	}
	return nil
}
