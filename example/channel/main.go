package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/pkg/connector"
)

// Every pipeline with `sink: {type: fanout}` gets its own channel sink; the
// sink channel closes when its pipeline finishes.
func main() {
	flow, err := connector.Conf("../../configs/connector.yaml")
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fanout := func(bc connector.BuildContext) (connector.Sink, error) {
		s := connector.NewChannelSink(bc.Pipeline, 32)
		go fanoutWorker(bc.Pipeline, s.C())
		return s, nil
	}

	if err := flow.Run(ctx, connector.StreamOutSink("fanout", fanout)); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []*connector.Record) {
	for batch := range batches {
		fmt.Printf("[%s] forwarding %d records at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
