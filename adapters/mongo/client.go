package mongo

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	defaultURI      = "mongodb://localhost:27017"
	defaultDatabase = "wicara"
	connectTimeout  = 10 * time.Second
)

// Client is the session store connection. Database is the handle the
// repositories work against.
type Client struct {
	client   *mongo.Client
	Database *mongo.Database
	logger   *zap.Logger
}

// Connect dials the instance named by MONGODB_URI and verifies it is
// reachable. MONGODB_DATABASE selects the database, defaulting to "wicara".
func Connect(ctx context.Context, logger *zap.Logger) (*Client, error) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		uri = defaultURI
	}
	name := os.Getenv("MONGODB_DATABASE")
	if name == "" {
		name = defaultDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	logger.Info("Connected to MongoDB", zap.String("database", name))
	return &Client{
		client:   client,
		Database: client.Database(name),
		logger:   logger,
	}, nil
}

// Close disconnects from the database.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect from mongodb: %w", err)
	}
	c.logger.Info("Disconnected from MongoDB")
	return nil
}
