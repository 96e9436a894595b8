package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/escrow-backend/pkg/config"
	"github.com/angelmondragon/escrow-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNothingToCheck    = errors.New("no pubsub topics or subscriptions requested")
)

// Option selects which resources the client must find before it is usable.
type Option func(*Client)

// WithTopics requires the named topics to exist. The outbox relay uses it.
func WithTopics(names ...string) Option {
	return func(c *Client) { c.topics = appendNames(c.topics, names) }
}

// WithSubscriptions requires the named subscriptions to exist. Consumers use it.
func WithSubscriptions(names ...string) Option {
	return func(c *Client) { c.subscriptions = appendNames(c.subscriptions, names) }
}

// WithOrdering enables per-key ordering on publishers handed out by the client.
func WithOrdering() Option {
	return func(c *Client) { c.ordered = true }
}

// Client wraps a Pub/Sub v2 client. Publisher handles are cached per topic
// and flushed on Close.
type Client struct {
	client        *pubsub.Client
	projectID     string
	cfg           config.PubSubConfig
	topics        []string
	subscriptions []string
	ordered       bool

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects and verifies every requested topic and subscription.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	c := &Client{
		projectID:  projectID,
		cfg:        cfg,
		publishers: make(map[string]*pubsub.Publisher),
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.topics) == 0 && len(c.subscriptions) == 0 {
		return nil, errNothingToCheck
	}

	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c.client = psClient

	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id":    projectID,
			"topics":        c.topics,
			"subscriptions": c.subscriptions,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping confirms the requested topics and subscriptions still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, name := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.resourceName("topics", name)})
		if err := classify("topic", name, err); err != nil {
			return err
		}
	}
	for _, name := range c.subscriptions {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.resourceName("subscriptions", name)})
		if err := classify("subscription", name, err); err != nil {
			return err
		}
	}
	return nil
}

func classify(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Subscription returns a receiver for a subscription ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(c.resourceName("subscriptions", name))
}

// NotificationSubscription returns the subscriber the delivery worker reads from.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	return c.Subscription(c.cfg.NotificationSubscription)
}

// Publisher returns the cached publisher for a topic ID or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	full := c.resourceName("topics", name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[full]; ok {
		return pub
	}
	pub := c.client.Publisher(full)
	pub.EnableMessageOrdering = c.ordered
	c.publishers[full] = pub
	return pub
}

// Close flushes outstanding publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for full, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, full)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resourceName expands a bare ID into projects/<project>/<kind>/<id>; names
// that are already fully qualified pass through.
func (c *Client) resourceName(kind, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	return fmt.Sprintf("projects/%s/%s/%s", c.projectID, kind, n)
}

func appendNames(dst, names []string) []string {
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			dst = append(dst, trimmed)
		}
	}
	return dst
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if creds := strings.TrimSpace(gcp.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
