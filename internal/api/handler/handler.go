package handler

import (
	"context"
	"log/slog"

	"github.com/windingtree/orgid-migrator/internal/orgid"
	"github.com/windingtree/orgid-migrator/internal/request"
	"github.com/windingtree/orgid-migrator/shared/postgresql"
	"github.com/windingtree/orgid-migrator/shared/rabbitmq"
	"github.com/windingtree/orgid-migrator/shared/redis"
)

// ContentStore is the content side the file endpoints need: publish,
// public URL formatting and URI fetching.
type ContentStore interface {
	Publish(ctx context.Context, data []byte, name string) (string, error)
	GatewayURL(cid string) string
	Resolve(ctx context.Context, uri string) ([]byte, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	DBClient     *postgresql.Client
	RedisClient  *redis.Client
	RabbitClient *rabbitmq.Client
	Requests     *request.Service
	DIDs         *orgid.Service
	Content      ContentStore
	Environment  string
	Version      string
}

// RequestHandler handles migration-request HTTP requests
type RequestHandler struct {
	logger      *slog.Logger
	requests    *request.Service
	environment string
}

// NewRequestHandler creates a new RequestHandler instance
func NewRequestHandler(deps *Dependencies) *RequestHandler {
	return &RequestHandler{
		logger:      deps.Logger,
		requests:    deps.Requests,
		environment: deps.Environment,
	}
}

// OrgIDHandler handles owned-identity HTTP requests
type OrgIDHandler struct {
	logger *slog.Logger
	dids   *orgid.Service
}

// NewOrgIDHandler creates a new OrgIDHandler instance
func NewOrgIDHandler(deps *Dependencies) *OrgIDHandler {
	return &OrgIDHandler{
		logger: deps.Logger,
		dids:   deps.DIDs,
	}
}

// FileHandler handles file-upload HTTP requests
type FileHandler struct {
	logger  *slog.Logger
	content ContentStore
}

// NewFileHandler creates a new FileHandler instance
func NewFileHandler(deps *Dependencies) *FileHandler {
	return &FileHandler{
		logger:  deps.Logger,
		content: deps.Content,
	}
}

// HealthHandler reports the service's backing-store connectivity
type HealthHandler struct {
	dbClient     *postgresql.Client
	redisClient  *redis.Client
	rabbitClient *rabbitmq.Client
	version      string
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{
		dbClient:     deps.DBClient,
		redisClient:  deps.RedisClient,
		rabbitClient: deps.RabbitClient,
		version:      deps.Version,
	}
}
