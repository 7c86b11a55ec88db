package utils

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Spinner initializes the process indicator.
type Spinner struct {
	out      io.Writer
	delay    time.Duration
	stopChan chan struct{}
	done     sync.WaitGroup
}

// NewSpinner instantiates a new Spinner writing to out.
func NewSpinner(out io.Writer, delay time.Duration) *Spinner {
	return &Spinner{out: out, delay: delay}
}

// Start starts the process indicator.
func (s *Spinner) Start(message string) {
	s.stopChan = make(chan struct{}, 1)
	s.done.Add(1)

	go func() {
		defer s.done.Done()
		for {
			for _, r := range `-\|/` {
				select {
				case <-s.stopChan:
					fmt.Fprintf(s.out, "\r%s%s %c%s\n", message, SuccessColor, '✓', DefaultColor)
					return
				default:
					fmt.Fprintf(s.out, "\r%s%s %c%s", message, StatusColor, r, DefaultColor)
					time.Sleep(s.delay)
				}
			}
		}
	}()
}

// Stop stops the process indicator and waits for its last frame.
func (s *Spinner) Stop() {
	if s.stopChan == nil {
		return
	}
	s.stopChan <- struct{}{}
	s.done.Wait()
	s.stopChan = nil
}
