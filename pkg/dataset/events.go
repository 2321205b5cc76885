package dataset

// WriteEvent describes one completed dataset write. Events are emitted on a
// side channel after the write lands, so observers never sit between the
// digest check and the storage call.
type WriteEvent struct {
	Dataset string
	Rows    int64

	// Bytes is the in-memory size of the written table, not its encoded
	// size on storage.
	Bytes      int64
	Columns    []string
	NullCounts map[string]int64
	Mode       WriteMode
	Location   string
}

// EventSink receives write events.
type EventSink func(WriteEvent)
