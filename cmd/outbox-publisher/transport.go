package main

import (
	"context"
	"errors"
	"strconv"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/sokolink-backend/pkg/nats"
	"github.com/angelmondragon/sokolink-backend/pkg/pubsub"
)

func pubSubPublisherFactory(client *pubsub.Client) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return &gcpPublisher{Publisher: p}
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *eventMessage) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, &gcppubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

func natsPublisherFactory(client *nats.Client) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return &natsPublisher{publisher: p}
	}
}

type natsPublisher struct {
	publisher *nats.Publisher
}

// Publish runs synchronously; JetStream acks before returning.
func (p *natsPublisher) Publish(ctx context.Context, msg *eventMessage) publishResult {
	seq, err := p.publisher.Publish(ctx, msg.EventType, msg.EventID, msg.Data, msg.Attributes)
	return natsPublishResult{seq: seq, err: err}
}

type natsPublishResult struct {
	seq uint64
	err error
}

func (r natsPublishResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return strconv.FormatUint(r.seq, 10), nil
}
