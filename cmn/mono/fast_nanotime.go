// Package mono provides a monotonic clock reading used by package nlog to
// track time-since-last-write per severity group (Since) without
// paying for a full time.Time per log line.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic-clock reading in nanoseconds, counted from
// process start.
func NanoTime() int64 { return int64(time.Since(start)) }
