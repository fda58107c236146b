// Package xlog wraps the standard log package the way the teacher's own
// cmd/main.go does: log.SetFlags(log.LstdFlags|log.Lshortfile) plus
// github.com/fatih/color highlighting for warnings and errors.
package xlog

import (
	"log"
	"os"

	"github.com/fatih/color"
)

var std = log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)

// SetFlags exists so cmd/ binaries can mirror the teacher's
// VERSION == "SELFBUILD" debug-flags toggle.
func SetFlags(flags int) { std.SetFlags(flags) }

func Printf(format string, args ...interface{}) {
	std.Output(2, color.WhiteString(format, args...))
}

func Warnf(format string, args ...interface{}) {
	std.Output(2, color.YellowString("WARN: "+format, args...))
}

func Errorf(format string, args ...interface{}) {
	std.Output(2, color.RedString("ERROR: "+format, args...))
}
