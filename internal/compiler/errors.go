package compiler

import "fmt"

// CompileError is a front-end failure with a template position. The
// taxonomy is disjoint from the VM's runtime errors: nothing here ever
// reaches a render.
type CompileError struct {
	Template string
	Line     int
	Col      int
	Msg      string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Template, e.Line, e.Col, e.Msg)
}

func errorf(template string, line, col int, format string, args ...interface{}) *CompileError {
	return &CompileError{
		Template: template,
		Line:     line,
		Col:      col,
		Msg:      fmt.Sprintf(format, args...),
	}
}
