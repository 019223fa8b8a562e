package domain

// TransferRepository defines the interface for transfer history persistence
type TransferRepository interface {
	// Save creates or updates a transfer
	Save(task *TransferTask) error

	// FindByID finds a transfer by ID
	FindByID(id string) (*TransferTask, error)

	// FindByDestination returns the most recent transfer targeting path, or nil
	FindByDestination(path string) (*TransferTask, error)

	// FindAll lists transfers, newest first, with optional column filters
	FindAll(filters map[string]interface{}, limit int) ([]*TransferTask, error)

	// GetStats returns transfer statistics
	GetStats() (*TransferStats, error)
}

// TransferStats represents transfer statistics
type TransferStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	InFlight  int64 `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Bytes     int64 `json:"bytes"`
}
