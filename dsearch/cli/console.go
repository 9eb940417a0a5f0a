package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/drive-search/dsearch/ports"

	"github.com/schollz/progressbar/v3"
)

// console writes results to out and everything else to errOut, keeping
// stdout clean for json and yaml output
type console struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

var _ ports.Interactor = (*console)(nil)

func newConsole(out, errOut io.Writer, quiet bool) *console {
	return &console{out: out, errOut: errOut, quiet: quiet}
}

func (c *console) Output(message string) {
	fmt.Fprintln(c.out, message)
}

func (c *console) Warning(message string) {
	c.clearSpinner()
	fmt.Fprintf(c.errOut, "warning: %s\n", message)
}

func (c *console) Error(message string, err error) {
	c.clearSpinner()
	if err != nil {
		fmt.Fprintf(c.errOut, "error: %s: %v\n", message, err)
		return
	}
	fmt.Fprintf(c.errOut, "error: %s\n", message)
}

// StartSpinner shows an indeterminate spinner with message
func (c *console) StartSpinner(message string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(c.errOut),
		progressbar.OptionSetDescription(message),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (c *console) UpdateSpinner(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar == nil {
		return
	}
	c.bar.Describe(message)
	_ = c.bar.Add(1)
}

func (c *console) StopSpinner(success bool, message string) {
	c.clearSpinner()
	if c.quiet || message == "" {
		return
	}
	mark := "done"
	if !success {
		mark = "incomplete"
	}
	fmt.Fprintf(c.errOut, "%s: %s\n", mark, message)
}

func (c *console) clearSpinner() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bar == nil {
		return
	}
	_ = c.bar.Finish()
	c.bar = nil
}
