package surreal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/surrealdb/surreal-sync/core"
)

// Subprotocol names of the two incompatible wire dialects.
const (
	subprotocolV2 = "surrealdb.rpc.v2.json"
	subprotocolV3 = "surrealdb.rpc.v3.json"
)

// Config carries everything needed to open a target connection.
type Config struct {
	Endpoint  string
	Username  string
	Password  string
	Namespace string
	Database  string
	Version   SDKVersion
}

// Client is a JSON-RPC client over one WebSocket connection. The connection
// is shared by all driver tasks of a run; Send serialises request/response
// pairs under a mutex, and the server side pools the actual work.
type Client struct {
	conn    *websocket.Conn
	version SDKVersion

	mu     sync.Mutex
	nextID uint64
}

type rpcRequest struct {
	ID     string        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Connect dials the endpoint, signs in as root, and selects the namespace
// and database. The SDK version must already be resolved (never
// VersionAuto).
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	var subprotocol string
	switch cfg.Version {
	case V2:
		subprotocol = subprotocolV2
	case V3:
		subprotocol = subprotocolV3
	default:
		return nil, &core.ConfigError{Msg: "SDK version must be resolved before connecting"}
	}

	dialer := websocket.Dialer{Subprotocols: []string{subprotocol}}
	conn, _, err := dialer.DialContext(ctx, wsEndpoint(cfg.Endpoint), nil)
	if err != nil {
		return nil, &core.SinkError{Op: "dial " + cfg.Endpoint, Err: err}
	}

	c := &Client{conn: conn, version: cfg.Version}
	if _, err := c.Send(ctx, "signin", map[string]interface{}{
		"user": cfg.Username,
		"pass": cfg.Password,
	}); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := c.Send(ctx, "use", cfg.Namespace, cfg.Database); err != nil {
		conn.Close()
		return nil, err
	}
	log.WithFields(log.Fields{
		"endpoint":  cfg.Endpoint,
		"namespace": cfg.Namespace,
		"database":  cfg.Database,
		"sdk":       cfg.Version,
	}).Info("connected to target")
	return c, nil
}

// Version returns the wire dialect this client speaks.
func (c *Client) Version() SDKVersion { return c.version }

// Send issues one RPC and waits for its response.
func (c *Client) Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := rpcRequest{
		ID:     strconv.FormatUint(c.nextID, 10),
		Method: method,
		Params: params,
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		c.conn.SetReadDeadline(deadline)
	}
	if err := c.conn.WriteJSON(&req); err != nil {
		return nil, &core.SinkError{Op: method, Err: err}
	}

	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return nil, &core.SinkError{Op: method, Err: err}
		}
		if resp.ID != req.ID {
			// Live-query notifications and stale responses are not ours.
			continue
		}
		if resp.Error != nil {
			return nil, &core.SinkError{Op: method, Err: fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)}
		}
		return resp.Result, nil
	}
}

// Query runs one SurrealQL statement with bound variables.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]interface{}) (json.RawMessage, error) {
	if vars == nil {
		vars = map[string]interface{}{}
	}
	return c.Send(ctx, "query", sql, vars)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
