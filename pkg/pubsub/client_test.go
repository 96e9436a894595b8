package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/escrow-backend/pkg/config"
)

func TestNewClientRequiresProject(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{}, nil, WithTopics("escrow-domain-events"))
	require.ErrorIs(t, err, errProjectIDRequired)
}

func TestNewClientRequiresSomethingToCheck(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{ProjectID: "escrow-dev"}, config.PubSubConfig{}, nil, WithTopics(" ", ""))
	require.ErrorIs(t, err, errNothingToCheck)
}

func TestResourceName(t *testing.T) {
	c := &Client{projectID: "escrow-dev"}
	assert.Equal(t, "projects/escrow-dev/topics/escrow-domain-events", c.resourceName("topics", " escrow-domain-events "))
	assert.Equal(t, "projects/other/topics/t1", c.resourceName("topics", "projects/other/topics/t1"))
	assert.Equal(t, "projects/escrow-dev/subscriptions/projects/other/topics/t1", c.resourceName("subscriptions", "projects/other/topics/t1"))
}

func TestClassify(t *testing.T) {
	require.NoError(t, classify("topic", "t1", nil))

	err := classify("subscription", "s1", status.Error(codes.NotFound, "gone"))
	require.EqualError(t, err, `subscription "s1" does not exist`)

	cause := status.Error(codes.Unavailable, "try later")
	err = classify("topic", "t1", cause)
	require.ErrorIs(t, err, cause)
	assert.False(t, errors.Is(err, errNothingToCheck))
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publisher("t1"))
	assert.Nil(t, c.Subscription("s1"))
	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}
