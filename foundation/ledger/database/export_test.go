package database

// SetCrashBeforeSwap makes the next commits stop after the records are
// written and before the header is swapped.
func SetCrashBeforeSwap(db *Database, f func() error) {
	db.crashBeforeSwap = f
}
