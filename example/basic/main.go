package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	connector "github.com/ObserveRTC/connector-sub000"
)

func main() {
	flow, err := connector.Conf("../../configs/connector.yaml")
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatalf("connector exited: %v", err)
	}
}
