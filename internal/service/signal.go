// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"os"
	"os/signal"
)

const signalBuffer = 1

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

// stdLibSignalSource is the production implementation.
type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleStatusSignal dumps the provider status table whenever one of the given
// signals is received, typically SIGUSR1. It blocks until the context ends.
func (s *Service) HandleStatusSignal(ctx context.Context, sig ...os.Signal) {
	sigChan := make(chan os.Signal, signalBuffer)
	s.signals.Notify(sigChan, sig...)
	defer s.signals.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			s.printStatus()
		}
	}
}
