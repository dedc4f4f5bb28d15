package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/pkg/connector"
)

// Pipelines select the callback sink with `sink: {type: stdout}`.
func main() {
	flow, err := connector.Conf("../../configs/connector.yaml")
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(_ context.Context, batch []*connector.Record) error {
		for _, r := range batch {
			fmt.Printf("%d type=%s origin=%s payload=%+v\n", r.TimestampMs, r.Type, r.OriginID, r.Payload)
		}
		return nil
	}

	if err := flow.Run(ctx, connector.StreamOutCallback("stdout", callback)); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatalf("runtime error: %v", err)
	}
}
