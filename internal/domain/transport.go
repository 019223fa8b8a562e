package domain

import "context"

// Transport moves one artifact to its destination.
// Implementations may rewrite task.DestinationPath; the caller reads it back.
type Transport interface {
	Transfer(ctx context.Context, task *TransferTask, sink ProgressSink) error
	Kind() TransportKind
}

// ProgressSink receives cumulative progress after each chunk
type ProgressSink interface {
	Progress(task *TransferTask)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(task *TransferTask)

// Progress implements ProgressSink
func (f ProgressFunc) Progress(task *TransferTask) { f(task) }

// NopProgress discards progress updates
var NopProgress ProgressSink = ProgressFunc(func(*TransferTask) {})

// Confirmer asks whether a title should be downloaded
type Confirmer interface {
	Confirm(ctx context.Context, title string) (bool, error)
}

// InstructionSink shows manual download instructions for alternate-host links
type InstructionSink interface {
	Instruct(title, url string)
}
