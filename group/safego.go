package group

// safeGo runs fn in its own goroutine, recovering any panic so a bug in the
// spawn completion path cannot take down the whole process; the
// panic is logged instead. Mirrors the old flock core.GoSafe helper for
// fire-and-forget background work.
func safeGo(g *Group, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
