package ports

// Interactor is the user-facing side of a long running search: plain output,
// warnings about skipped folders and a live status line.
type Interactor interface {
	Output(message string)
	Warning(message string)
	Error(message string, err error)
	StartSpinner(message string)
	UpdateSpinner(message string)
	StopSpinner(success bool, message string)
}
