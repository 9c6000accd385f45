package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"skyweb/models"
	"skyweb/moderation"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"
)

const (
	DefaultPDSHost    = "https://bsky.social"
	DefaultPublicHost = "https://public.api.bsky.app"

	PostCollection = "app.bsky.feed.post"
)

type Credentials struct {
	Identifier string
	Password   string
}

// Options tune the client behaviour. The zero value is usable.
type Options struct {
	// Requests per second, zero disables limiting
	RateLimit float64
	UserAgent string
	// Retries for transient failures after the first attempt
	MaxRetries uint64
	HTTPClient *http.Client
}

// PolicySource provides the moderation policy applied to fetched posts
type PolicySource interface {
	ModerationPolicy() *moderation.Policy
}

type Client struct {
	mu   sync.RWMutex
	xrpc *xrpc.Client

	limiter    *rate.Limiter
	maxRetries uint64
	policy     PolicySource
}

func newClient(host string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	xrpcClient := &xrpc.Client{
		Host:   host,
		Client: httpClient,
	}
	if opts.UserAgent != "" {
		userAgent := opts.UserAgent
		xrpcClient.UserAgent = &userAgent
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	maxRetries := opts.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		xrpc:       xrpcClient,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: maxRetries,
	}
}

// Anonymous returns a client without a session, used against the public AppView
func Anonymous(host string, opts Options) *Client {
	return newClient(host, opts)
}

func ClientFromCredentials(ctx context.Context, host string, creds *Credentials, opts Options) (*Client, error) {
	client := newClient(host, opts)

	auth, err := call(ctx, client, "createSession", func(xc *xrpc.Client) (*atproto.ServerCreateSession_Output, error) {
		return atproto.ServerCreateSession(ctx, xc, &atproto.ServerCreateSession_Input{
			Identifier: creds.Identifier,
			Password:   creds.Password,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client.setAuth(&xrpc.AuthInfo{
		AccessJwt:  auth.AccessJwt,
		RefreshJwt: auth.RefreshJwt,
		Handle:     auth.Handle,
		Did:        auth.Did,
	})

	return client, nil
}

// SetPolicySource installs the moderation policy used when converting posts
func (c *Client) SetPolicySource(source PolicySource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policy = source
}

// Identity returns the logged in account, or nil for anonymous clients
func (c *Client) Identity() *models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.xrpc.Auth == nil {
		return nil
	}
	return &models.Identity{Did: c.xrpc.Auth.Did, Handle: c.xrpc.Auth.Handle}
}

// CreatePost writes a post record to the account's repository
func (c *Client) CreatePost(ctx context.Context, post *bsky.FeedPost) (*models.PostRef, error) {
	identity := c.Identity()
	if identity == nil {
		return nil, ErrNotAuthenticated
	}

	out, err := call(ctx, c, "createRecord", func(xc *xrpc.Client) (*atproto.RepoCreateRecord_Output, error) {
		return atproto.RepoCreateRecord(ctx, xc, &atproto.RepoCreateRecord_Input{
			Collection: PostCollection,
			Repo:       identity.Did,
			Record: &lexutil.LexiconTypeDecoder{
				Val: post,
			},
		})
	})
	if err != nil {
		// Display the entire http response error so we can see what went wrong
		log.Errorf("failed to create record: %s", err)
		return nil, fmt.Errorf("failed to create record: %w", err)
	}

	return &models.PostRef{Uri: out.Uri, Cid: out.Cid}, nil
}

func (c *Client) client() *xrpc.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c.xrpc
	return &cp
}

func (c *Client) setAuth(auth *xrpc.AuthInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.xrpc.Auth = auth
}

func (c *Client) moderationPolicy() *moderation.Policy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.policy == nil {
		policy := moderation.DefaultPolicy()
		policy.Authenticated = c.xrpc.Auth != nil
		return policy
	}
	return c.policy.ModerationPolicy()
}

// FormatTime formats a time.Time into the format expected by AT Protocol
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
