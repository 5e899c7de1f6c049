// Package nlog is the leveled logger used across the communicator, mirroring
// the terse Infoln/Errorln convention of the cluster code this module grew out of.
package nlog

import (
	"log"
	"os"
	"sync/atomic"
)

var std = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)

// verbosity, set once at process start via SetLevel (trainerd passes its
// -v flag).
var level int32

func SetLevel(v int) { atomic.StoreInt32(&level, int32(v)) }

func V(v int) bool { return atomic.LoadInt32(&level) >= int32(v) }

func Infoln(v ...any)                 { std.Println(v...) }
func Infof(format string, v ...any)   { std.Printf(format+"\n", v...) }
func Warningln(v ...any)              { std.Println(append([]any{"W:"}, v...)...) }
func Warningf(format string, v ...any) { std.Printf("W: "+format+"\n", v...) }
func Errorln(v ...any)                { std.Println(append([]any{"E:"}, v...)...) }
func Errorf(format string, v ...any)  { std.Printf("E: "+format+"\n", v...) }

// Fatalln logs and terminates the process; trainerd uses it for startup
// failures (config, Build, checkpoint open).
func Fatalln(v ...any) { std.Println(append([]any{"FATAL:"}, v...)...); os.Exit(1) }
