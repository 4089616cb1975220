// Package workernode implements the worker-side runtime: dial the
// coordinator, advertise an activation address, report local resources,
// await the CONFIG assignment, build the assigned Sequential layer slice,
// and forward activations to the next node in the chain.
package workernode

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/kernels"
	"github.com/tensorfabric/fabric/pkg/layer"
	"github.com/tensorfabric/fabric/pkg/netconn"
	"github.com/tensorfabric/fabric/pkg/partition"
	"github.com/tensorfabric/fabric/pkg/tensor"
	"github.com/tensorfabric/fabric/pkg/transport"
	"github.com/tensorfabric/fabric/pkg/wire"
)

// Config controls one worker run.
type Config struct {
	MasterAddr     string // "host:port" of the coordinator.
	ActivationAddr string // local address this worker listens on for peer activations, e.g. "0.0.0.0:0".
	PoolSize       int
	Seed           uint64 // deterministic seed for this worker's layer weight initialization.
}

// Client is one worker's connection to the coordinator plus its assigned
// Sequential model slice, once CONFIG arrives.
type Client struct {
	cfg    Config
	logger *slog.Logger
	pool   *concurrency.WorkerPool

	conn *netconn.Connection

	actListener net.Listener
	actAddr     string

	mu         sync.Mutex
	assignment *partition.NodeAssignment
	model      *layer.Sequential
	handler    ActivationHandler
}

// New builds an unconnected Client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		pool:   concurrency.NewWorkerPool(cfg.PoolSize),
	}
}

// Listen binds this worker's activation listener. Separated from Dial so
// callers (cmd/fabric-worker) can map a local-socket failure to a
// different process exit code than a failure to reach the coordinator.
func (c *Client) Listen() error {
	ln, err := net.Listen("tcp", c.cfg.ActivationAddr)
	if err != nil {
		return fmt.Errorf("workernode: activation listen %s: %w", c.cfg.ActivationAddr, err)
	}
	c.actListener = ln
	c.actAddr = ln.Addr().String()
	go c.acceptActivations()
	return nil
}

// Dial connects to the coordinator and sends HELLO with this worker's
// activation address. Listen must have already succeeded.
func (c *Client) Dial() error {
	tr, err := transport.DialTCP(c.cfg.MasterAddr)
	if err != nil {
		return fmt.Errorf("workernode: dial %s: %w", c.cfg.MasterAddr, err)
	}
	c.conn = netconn.New(tr)

	if err := c.conn.SendMessage(wire.MsgHello, []byte(c.actAddr)); err != nil {
		c.conn.Close()
		return fmt.Errorf("workernode: sending HELLO: %w", err)
	}
	return nil
}

// Connect is a convenience wrapper running Listen then Dial, for callers
// that do not need the distinct failure modes separately.
func (c *Client) Connect() error {
	if err := c.Listen(); err != nil {
		return err
	}
	return c.Dial()
}

// ReportResources sends one RESOURCE_REPORT frame with the given free-RAM
// (bytes) and hardware-thread count.
func (c *Client) ReportResources(ramBytes uint64, threads uint32) error {
	payload := wire.EncodeResourceReport(ramBytes, threads)
	return c.conn.SendMessage(wire.MsgResourceReport, payload)
}

// AwaitConfig blocks, replying to PING with PONG, until a CONFIG frame
// arrives; it decodes the assignment, builds this worker's Sequential
// model slice, and returns the assignment. ctx cancellation is observed
// between frames only (RecvMessage itself still blocks on the socket).
func (c *Client) AwaitConfig(ctx context.Context) (partition.NodeAssignment, error) {
	for {
		select {
		case <-ctx.Done():
			return partition.NodeAssignment{}, ctx.Err()
		default:
		}

		msgType, payload, err := c.conn.RecvMessage()
		if err != nil {
			return partition.NodeAssignment{}, fmt.Errorf("workernode: handshake failed: %w", err)
		}

		switch msgType {
		case wire.MsgPing:
			if err := c.conn.SendMessage(wire.MsgPong, nil); err != nil {
				return partition.NodeAssignment{}, fmt.Errorf("workernode: replying to PING: %w", err)
			}
		case wire.MsgConfig:
			assignment, err := wire.DecodeConfig(payload)
			if err != nil {
				return partition.NodeAssignment{}, fmt.Errorf("workernode: decoding CONFIG: %w", err)
			}
			model, err := c.buildModel(assignment)
			if err != nil {
				return partition.NodeAssignment{}, err
			}
			c.mu.Lock()
			c.assignment = &assignment
			c.model = model
			c.mu.Unlock()
			return assignment, nil
		case wire.MsgShutdown:
			return partition.NodeAssignment{}, fmt.Errorf("workernode: coordinator requested shutdown during handshake")
		default:
			c.logger.Warn("unexpected message during handshake, ignoring", "type", msgType)
		}
	}
}

// defaultHiddenWidth is the per-layer feature width used when constructing
// each worker's Affine+activation pairs. No concrete network architecture
// is pinned anywhere else (only a layer range and a byte budget per node),
// so this value is a deliberate simplification: every assigned layer is one
// Affine(width,width) followed by one activation chosen by layer index
// modulo 3 from the closed layer set, giving a runnable, shape-stable
// model. Its size is fixed by this width per layer; ArrayBytes does not
// affect it.
const defaultHiddenWidth = 64

// buildModel constructs the Sequential slice this worker owns: one
// Affine+activation pair per assigned layer index, cycling through the
// closed activation set so every one of the four layer kinds is exercised
// across a large enough model.
func (c *Client) buildModel(assignment partition.NodeAssignment) (*layer.Sequential, error) {
	seq := layer.NewSequential(c.pool)
	for i := assignment.LayerBegin; i < assignment.LayerEnd; i++ {
		affine, err := layer.NewAffine(defaultHiddenWidth, defaultHiddenWidth, c.cfg.Seed+uint64(i))
		if err != nil {
			return nil, fmt.Errorf("workernode: building layer %d: %w", i, err)
		}
		seq.Add(affine)

		switch i % 3 {
		case 0:
			seq.Add(layer.NewRectified())
		case 1:
			seq.Add(layer.NewLeakyRectified(0.01))
		case 2:
			seq.Add(layer.NewLogistic())
		}
	}
	return seq, nil
}

// Model returns the constructed Sequential slice, or nil before CONFIG
// has been processed.
func (c *Client) Model() *layer.Sequential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Assignment returns the decoded NodeAssignment, or the zero value before
// CONFIG has arrived.
func (c *Client) Assignment() partition.NodeAssignment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.assignment == nil {
		return partition.NodeAssignment{}
	}
	return *c.assignment
}

// RunForward threads x through this worker's model slice and, unless this
// is the last node in the chain, forwards the result to NextAddr as an
// ACTIVATION frame. It returns the local output either way so a caller
// running the first/last node in-process can observe it directly.
func (c *Client) RunForward(x *tensor.Tensor) (*tensor.Tensor, error) {
	assignment := c.Assignment()
	model := c.Model()
	if model == nil {
		return nil, fmt.Errorf("workernode: RunForward called before CONFIG")
	}

	out, err := model.Forward(x)
	if err != nil {
		return nil, err
	}

	if !assignment.IsLast && assignment.NextAddr != "" {
		if err := c.ForwardActivation(assignment.NextAddr, out); err != nil {
			return out, fmt.Errorf("workernode: forwarding activation to %s: %w", assignment.NextAddr, err)
		}
	}
	return out, nil
}

// ForwardActivation dials addr fresh, sends t as one ACTIVATION frame, and
// closes the connection. Activation links are short-lived and
// unidirectional, unlike the persistent coordinator connection.
func (c *Client) ForwardActivation(addr string, t *tensor.Tensor) error {
	tr, err := transport.DialTCP(addr)
	if err != nil {
		return err
	}
	defer tr.Close()

	payload, err := wire.EncodeActivation(t.Shape(), t.Data())
	if err != nil {
		return err
	}
	nc := netconn.New(tr)
	return nc.SendMessage(wire.MsgActivation, payload)
}

// ActivationHandler is invoked with each tensor this worker receives from
// its upstream peer.
type ActivationHandler func(*tensor.Tensor)

// SetActivationHandler registers fn to run for every tensor arriving over
// this worker's activation listener. Must be called before the upstream
// peer starts forwarding, typically right after AwaitConfig returns.
func (c *Client) SetActivationHandler(fn ActivationHandler) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

func (c *Client) acceptActivations() {
	for {
		conn, err := c.actListener.Accept()
		if err != nil {
			return
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		tr, err := transport.NewTCP(tcpConn)
		if err != nil {
			conn.Close()
			continue
		}
		go c.serveActivationConn(tr)
	}
}

func (c *Client) serveActivationConn(tr *transport.TCP) {
	defer tr.Close()
	nc := netconn.New(tr)
	msgType, payload, err := nc.RecvMessage()
	if err != nil {
		return
	}
	if msgType != wire.MsgActivation {
		c.logger.Warn("unexpected message on activation listener, ignoring", "type", msgType)
		return
	}
	shape, data, err := wire.DecodeActivation(payload)
	if err != nil {
		c.logger.Warn("malformed ACTIVATION payload, ignoring", "error", err)
		return
	}
	t, err := tensor.FromData(data, shape...)
	if err != nil {
		c.logger.Warn("invalid ACTIVATION tensor, ignoring", "error", err)
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(t)
	}
}

// Close shuts down the coordinator connection, the activation listener,
// and this worker's pool.
func (c *Client) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.actListener != nil {
		c.actListener.Close()
	}
	c.pool.Shutdown()
	return nil
}

// ActivationAddr returns the address this worker's activation listener is
// bound to, valid after Listen (or Connect) returns.
func (c *Client) ActivationAddr() string {
	return c.actAddr
}

// Kernel re-exports the numerically stable logistic function for callers
// (e.g. tests) that want to compare a layer's output against the raw
// kernel directly.
var Kernel = kernels.Logistic
