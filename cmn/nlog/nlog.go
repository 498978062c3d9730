// Package nlog is a small glog-style severity-leveled logger: one
// mutex-guarded buffered writer per severity group, flushed on demand
// (Flush), with an optional on-disk rotation by size.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ljwoods2/imdbridge/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

const defaultMaxSize = 4 * 1024 * 1024

var (
	MaxSize int64 = defaultMaxSize

	toStderr     bool
	alsoToStderr bool
	logDir       string
	aisrole      string
	title        string

	pid  = os.Getpid()
	host = func() string {
		h, err := os.Hostname()
		if err != nil {
			return "localhost"
		}
		return h
	}()
)

type group struct {
	mu       sync.Mutex
	w        *bufio.Writer
	file     *os.File
	written  int64
	lastNano int64
	sev      severity
}

var groups = [...]*group{
	sevInfo: {sev: sevInfo},
	sevWarn: {sev: sevWarn},
	sevErr:  {sev: sevErr},
}

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func SetLogDirRole(dir, role string) { logDir, aisrole = dir, role }
func SetTitle(s string)              { title = s }

func sname() string {
	if aisrole == "" {
		return "imdbridge"
	}
	return "imdbridge." + aisrole
}

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func InfoDepth(depth int, args ...any)    { logf(sevInfo, depth+1, "", args...) }
func Infoln(args ...any)                  { logf(sevInfo, 1, "", args...) }
func Infof(format string, args ...any)    { logf(sevInfo, 1, format, args...) }
func Warningln(args ...any)               { logf(sevWarn, 1, "", args...) }
func Warningf(format string, args ...any) { logf(sevWarn, 1, format, args...) }
func ErrorDepth(depth int, args ...any)   { logf(sevErr, depth+1, "", args...) }
func Errorln(args ...any)                 { logf(sevErr, 1, "", args...) }
func Errorf(format string, args ...any)   { logf(sevErr, 1, format, args...) }

func logf(sev severity, depth int, format string, args ...any) {
	line := formatLine(sev, depth+1, format, args...)

	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	if alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}

	g := groups[sev]
	g.mu.Lock()
	g.write(line)
	g.mu.Unlock()

	if sev >= sevWarn {
		// warnings and errors also land in the info stream, glog-style
		gi := groups[sevInfo]
		gi.mu.Lock()
		gi.write(line)
		gi.mu.Unlock()
	}
}

// under g.mu
func (g *group) write(line string) {
	if logDir == "" {
		return // no file sink configured; stderr-only fan-out above already happened
	}
	if g.w == nil {
		if err := g.openLocked(); err != nil {
			return
		}
	}
	n, _ := g.w.WriteString(line)
	g.written += int64(n)
	g.lastNano = mono.NanoTime()
	if g.written >= MaxSize {
		g.rotateLocked()
	}
}

// under g.mu
func (g *group) openLocked() error {
	now := time.Now()
	name := fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d.log",
		sname(), host, sevName(g.sev), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), pid)
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	g.file = f
	g.w = bufio.NewWriterSize(f, 32*1024)
	if title != "" {
		g.w.WriteString(title + "\n")
	}
	return nil
}

// under g.mu
func (g *group) rotateLocked() {
	g.w.Flush()
	g.file.Close()
	g.file = nil
	g.w = nil
	g.written = 0
}

func sevName(s severity) string {
	switch s {
	case sevWarn:
		return "WARNING"
	case sevErr:
		return "ERROR"
	default:
		return "INFO"
	}
}

func formatLine(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	now := time.Now()
	b.WriteString(now.Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if !strings.HasSuffix(format, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Flush writes out any buffered lines; exit[0]=true also syncs and closes files.
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	for _, g := range groups {
		g.mu.Lock()
		if g.w != nil {
			g.w.Flush()
			if ex {
				g.file.Sync()
				g.file.Close()
				g.file, g.w = nil, nil
			}
		}
		g.mu.Unlock()
	}
}

// Since returns the longest time since the last write among the groups that
// have written at least once; zero if none has.
func Since() time.Duration {
	now := mono.NanoTime()
	var max time.Duration
	for _, g := range groups {
		g.mu.Lock()
		if g.lastNano != 0 {
			if d := time.Duration(now - g.lastNano); d > max {
				max = d
			}
		}
		g.mu.Unlock()
	}
	return max
}

// OOB reports whether any group currently holds unflushed, file-backed output.
func OOB() bool {
	for _, g := range groups {
		g.mu.Lock()
		buffered := g.w != nil && g.w.Buffered() > 0
		g.mu.Unlock()
		if buffered {
			return true
		}
	}
	return false
}
