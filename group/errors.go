package group

import "github.com/gravitational/trace"

// ErrGetAborted is delivered to every waiter on a group's wait list when
// that group is forcibly detached out from under them (spec.md §7, error
// kind 3).
var ErrGetAborted = trace.Errorf("the containing group was detached")

// ErrNoStartCommand is the error a spawn attempt fails with, and that the
// group's waiters receive, when the group has no way to start a process.
var ErrNoStartCommand = trace.BadParameter("group has no start command configured")
