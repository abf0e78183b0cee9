package pythd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// DefaultEndpoint is the default websocket endpoint of a local pythd.
	DefaultEndpoint = "ws://127.0.0.1:8910"

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
)

// Client is a JSON-RPC 2.0 client for pythd over a single websocket
// connection. Calls can be made concurrently, writes are serialized and
// replies are matched to calls by id.
// The connection is never re-established once lost: Done is closed and
// every pending or future call fails with ErrConnectionLost.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer

	connMtx sync.Mutex
	conn    *websocket.Conn

	writeMtx sync.Mutex

	nextID     uint64
	pendingMtx sync.Mutex
	pending    map[uint64]chan *message

	handler NotifyPriceSchedHandler

	done      chan struct{}
	closeOnce sync.Once
	closing   int32
	errMtx    sync.RWMutex
	err       error
}

// NewClient returns a new client for the pythd listening at the given
// websocket endpoint.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		pending: make(map[uint64]chan *message),
		done:    make(chan struct{}),
	}
}

// Connect opens the connection with pythd and starts listening for incoming
// messages. The given handler is called in a dedicated goroutine for every
// notify_price_sched notification received.
func (c *Client) Connect(ctx context.Context, handler NotifyPriceSchedHandler) error {
	c.connMtx.Lock()
	defer c.connMtx.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to pythd at %s: %w", c.endpoint, err)
	}

	c.conn = conn
	c.handler = handler

	go c.listen(conn)

	log.WithField("endpoint", c.endpoint).Debug("connected to pythd")
	return nil
}

// Done returns a channel closed once the connection is terminated.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason why the connection was lost. It's nil if the
// connection is still open or if it was closed with Close.
func (c *Client) Err() error {
	c.errMtx.RLock()
	defer c.errMtx.RUnlock()

	return c.err
}

// Close terminates the connection with pythd.
func (c *Client) Close() error {
	c.connMtx.Lock()
	conn := c.conn
	c.connMtx.Unlock()

	if conn == nil {
		return nil
	}

	atomic.StoreInt32(&c.closing, 1)

	c.writeMtx.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	c.writeMtx.Unlock()

	err := conn.Close()
	c.terminate(nil)
	return err
}

// GetProductList returns all products known by pythd.
func (c *Client) GetProductList(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.call(ctx, methodGetProductList, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// SubscribePriceSched subscribes to the price schedule of the given price
// account and returns the id of the subscription that notifications will
// refer to.
func (c *Client) SubscribePriceSched(
	ctx context.Context, account string,
) (SubscriptionID, error) {
	var result subscribePriceSchedResult
	params := subscribePriceSchedParams{account}
	if err := c.call(ctx, methodSubscribePriceSched, params, &result); err != nil {
		return 0, err
	}
	return result.Subscription, nil
}

// UpdatePrice publishes a new price for the given price account. Price and
// confidence are fixed point numbers scaled by the account exponent.
func (c *Client) UpdatePrice(
	ctx context.Context, account string, price, conf int64, status string,
) error {
	if conf < 0 {
		return ErrNegativeConfidence
	}
	params := updatePriceParams{
		Account: account,
		Price:   price,
		Conf:    uint64(conf),
		Status:  status,
	}
	return c.call(ctx, methodUpdatePrice, params, nil)
}

func (c *Client) call(
	ctx context.Context, method string, params, result interface{},
) error {
	c.connMtx.Lock()
	conn := c.conn
	c.connMtx.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	id := atomic.AddUint64(&c.nextID, 1)
	replyChan := make(chan *message, 1)

	c.pendingMtx.Lock()
	select {
	case <-c.done:
		c.pendingMtx.Unlock()
		return ErrConnectionLost
	default:
	}
	c.pending[id] = replyChan
	c.pendingMtx.Unlock()
	defer c.removePending(id)

	req := request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
	if err := c.write(conn, req); err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionLost
	case reply := <-replyChan:
		if reply.Error != nil {
			return reply.Error
		}
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(reply.Result, result); err != nil {
			return fmt.Errorf("malformed %s result: %w", method, err)
		}
		return nil
	}
}

func (c *Client) write(conn *websocket.Conn, req request) error {
	buf, err := json.Marshal(req)
	if err != nil {
		return err
	}

	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, buf)
}

func (c *Client) listen(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if atomic.LoadInt32(&c.closing) == 1 {
				c.terminate(nil)
				return
			}
			log.WithError(err).Error("connection with pythd dropped")
			c.terminate(fmt.Errorf("%w: %s", ErrConnectionLost, err))
			return
		}

		messages, err := decodeMessages(data)
		if err != nil {
			log.WithError(err).Warn("skipping malformed message from pythd")
			continue
		}
		for _, msg := range messages {
			if msg == nil {
				continue
			}
			c.handleMessage(msg)
		}
	}
}

func (c *Client) handleMessage(msg *message) {
	if msg.Method != "" {
		c.handleNotification(msg)
		return
	}
	if msg.ID == nil {
		log.Debug("skipping pythd reply without id")
		return
	}

	c.pendingMtx.Lock()
	replyChan, ok := c.pending[*msg.ID]
	delete(c.pending, *msg.ID)
	c.pendingMtx.Unlock()

	if !ok {
		log.WithField("id", *msg.ID).Debug("skipping pythd reply for unknown request")
		return
	}
	replyChan <- msg
}

func (c *Client) handleNotification(msg *message) {
	if msg.Method != methodNotifyPriceSched {
		log.WithField("method", msg.Method).Debug("skipping unsupported pythd notification")
		return
	}

	var params notifyPriceSchedParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		log.WithError(err).Warn("skipping malformed notify_price_sched notification")
		return
	}

	log.WithField("subscription", params.Subscription).Trace(
		"notify_price_sched received",
	)
	if c.handler != nil {
		go c.handler(params.Subscription)
	}
}

func (c *Client) removePending(id uint64) {
	c.pendingMtx.Lock()
	defer c.pendingMtx.Unlock()

	delete(c.pending, id)
}

func (c *Client) terminate(err error) {
	c.closeOnce.Do(func() {
		c.errMtx.Lock()
		c.err = err
		c.errMtx.Unlock()

		c.pendingMtx.Lock()
		close(c.done)
		c.pendingMtx.Unlock()
	})
}

// decodeMessages parses either a single message or a batch of them.
func decodeMessages(data []byte) ([]*message, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var batch []*message
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}

	msg := &message{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return []*message{msg}, nil
}
