package storage

// Stats counts the operations a store has served since it was opened.
type Stats struct {
	Reads  uint64
	Writes uint64
}

// StatsProvider is implemented by stores that count their operations.
type StatsProvider interface {
	Stats() Stats
}
