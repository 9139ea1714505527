package natsclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/bridgekit/errors"
)

// KV buckets are backed by streams named with this prefix.
const kvStreamPrefix = "KV_"

// CreateKeyValueBucket creates a KV bucket, or hands back the existing
// one when the name is already taken. Two hosts racing to create the
// same bucket both end up bound to it.
func (c *Client) CreateKeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	js, err := c.jetStreamReady()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		c.logger.Printf("using existing KV bucket %s", cfg.Bucket)
		c.resetCircuit()
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil {
		if !isAlreadyExistsError(err) {
			c.recordFailure()
			return nil, err
		}

		// Another client created the bucket between the lookup and the
		// create. Bind to theirs.
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			c.recordFailure()
			return nil, errors.Wrap(err, "Client", "CreateKeyValueBucket",
				fmt.Sprintf("access existing bucket %s", cfg.Bucket))
		}
		c.logger.Printf("bound to concurrently created KV bucket %s", cfg.Bucket)
		c.resetCircuit()
		return bucket, nil
	}

	c.logger.Printf("created KV bucket %s", cfg.Bucket)
	c.resetCircuit()
	return bucket, nil
}

// GetKeyValueBucket binds to an existing KV bucket.
func (c *Client) GetKeyValueBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	js, err := c.jetStreamReady()
	if err != nil {
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, name)
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	c.resetCircuit()
	return bucket, nil
}

// DeleteKeyValueBucket removes a KV bucket and everything in it.
func (c *Client) DeleteKeyValueBucket(ctx context.Context, name string) error {
	js, err := c.jetStreamReady()
	if err != nil {
		return err
	}

	if err := js.DeleteKeyValue(ctx, name); err != nil {
		c.recordFailure()
		return err
	}

	c.resetCircuit()
	return nil
}

// ListKeyValueBuckets returns the names of all KV buckets on the
// server, derived from the streams carrying the KV prefix.
func (c *Client) ListKeyValueBuckets(ctx context.Context) ([]string, error) {
	js, err := c.jetStreamReady()
	if err != nil {
		return nil, err
	}

	names := []string{}
	lister := js.ListStreams(ctx)
	for info := range lister.Info() {
		if info == nil {
			continue
		}
		if rest, ok := strings.CutPrefix(info.Config.Name, kvStreamPrefix); ok && rest != "" {
			names = append(names, rest)
		}
	}
	if err := lister.Err(); err != nil {
		c.recordFailure()
		return nil, err
	}

	c.resetCircuit()
	return names, nil
}

// isAlreadyExistsError reports whether the server rejected a create
// because the bucket or its backing stream already exists.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "bucket name already in use") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "stream name already in use")
}
