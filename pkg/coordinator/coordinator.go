// Package coordinator implements the control plane: listener, accept loop,
// per-connection receive loop, heartbeat loop, and the readiness-driven
// partitioning trigger, in the idiomatic Go shape of a Start/Stop-able
// network service (listener field, running flag, WaitGroup join on Stop).
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tensorfabric/fabric/pkg/concurrency"
	"github.com/tensorfabric/fabric/pkg/fabricconfig"
	"github.com/tensorfabric/fabric/pkg/netconn"
	"github.com/tensorfabric/fabric/pkg/partition"
	"github.com/tensorfabric/fabric/pkg/readiness"
	"github.com/tensorfabric/fabric/pkg/registry"
	"github.com/tensorfabric/fabric/pkg/transport"
	"github.com/tensorfabric/fabric/pkg/wire"
)

// Stats is a point-in-time snapshot of coordinator counters, exposed for a
// human operator or a future metrics front-end (explicitly out of scope
// for this package itself).
type Stats struct {
	RegisteredNodes int
	ReadyNodes      int
	Rejections      int64
}

// Coordinator owns the listener, the connection registry, the readiness
// monitor, and the worker pool that every inbound frame is dispatched onto.
type Coordinator struct {
	cfg    *fabricconfig.Config
	logger *slog.Logger

	registry  *registry.ConnectionRegistry
	readiness *readiness.Monitor
	pool      *concurrency.WorkerPool

	listener net.Listener

	mu      sync.Mutex
	running bool
	stopped chan struct{}
	wg      sync.WaitGroup

	connsMu sync.Mutex
	conns   map[string]*netconn.Connection

	rejections atomic.Int64

	partitionOnce sync.Once
}

// New builds a Coordinator from cfg. The returned Coordinator does not
// listen until Start is called.
func New(cfg *fabricconfig.Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:       cfg,
		logger:    logger,
		registry:  registry.NewConnectionRegistry(cfg.MaxNodes),
		readiness: readiness.NewMonitor(cfg.ExpectedWorkers),
		pool:      concurrency.NewWorkerPool(cfg.PoolSize),
		conns:     make(map[string]*netconn.Connection),
	}
}

// Start is idempotent: calling it on an already-running Coordinator
// returns nil without doing anything. It binds the listener, starts the
// accept and heartbeat goroutines, and registers the partitioning trigger.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", c.cfg.BindAddress, c.cfg.Port)
	ln, err := listenTCPWithBacklog(addr, c.cfg.ListenBacklog)
	if err != nil {
		return fmt.Errorf("coordinator: listen %s: %w", addr, err)
	}
	c.listener = ln
	c.stopped = make(chan struct{})

	c.readiness.SetOnQuorum(func(readyIDs []string) {
		c.triggerPartition(readyIDs)
	})

	c.wg.Add(2)
	go c.acceptLoop()
	go c.heartbeatLoop()

	c.running = true
	c.logger.Info("coordinator started", "addr", addr, "expected_workers", c.cfg.ExpectedWorkers)
	return nil
}

// Stop signals the stopping flag, tears down the listener to unblock the
// accept goroutine, closes every open connection so the per-connection
// goroutines return, and waits for all of them and the heartbeat goroutine
// to exit. Stop on a non-running Coordinator is a no-op.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopped)
	ln := c.listener
	c.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	c.connsMu.Lock()
	for _, conn := range c.conns {
		conn.Close()
	}
	c.connsMu.Unlock()

	c.wg.Wait()
	c.pool.Shutdown()

	c.logger.Info("coordinator stopped")
	return nil
}

// Stats returns a snapshot of current coordinator counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		RegisteredNodes: c.registry.Size(),
		ReadyNodes:      c.registry.ReadyCount(),
		Rejections:      c.rejections.Load(),
	}
}

func (c *Coordinator) isStopping() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// acceptLoop blocks on Accept, rejecting connections once the registry is
// at capacity and otherwise registering and spawning a per-connection
// goroutine for each one.
func (c *Coordinator) acceptLoop() {
	defer c.wg.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if c.isStopping() {
				return
			}
			c.logger.Warn("accept error", "error", err)
			continue
		}

		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}

		if c.registry.Size() >= c.cfg.MaxNodes {
			c.rejections.Add(1)
			c.logger.Warn("rejecting connection: registry at capacity", "max_nodes", c.cfg.MaxNodes)
			conn.Close()
			continue
		}

		tr, err := transport.NewTCP(tcpConn)
		if err != nil {
			c.logger.Warn("enabling TCP_NODELAY failed", "error", err)
			conn.Close()
			continue
		}

		id := uuid.New().String()
		nc := netconn.New(tr)

		c.registry.Insert(id, registry.NodeInfo{
			Addr:     tr.RemoteAddr(),
			LastSeen: time.Now(),
			Alive:    true,
		})
		c.readiness.MarkConnecting(id)

		c.connsMu.Lock()
		c.conns[id] = nc
		c.connsMu.Unlock()

		c.wg.Add(1)
		go c.connectionLoop(id, nc)
	}
}

// connectionLoop repeatedly receives frames on one connection, submitting
// each valid frame to the worker pool for dispatch, until the connection
// closes, errors, or the coordinator stops.
func (c *Coordinator) connectionLoop(id string, conn *netconn.Connection) {
	defer c.wg.Done()
	defer c.teardownConnection(id, conn)

	for {
		msgType, payload, err := conn.RecvMessage()
		if err != nil {
			if !errors.Is(err, wire.ErrZeroLengthFrame) {
				c.logger.Debug("connection closed", "id", id, "error", err)
			} else {
				c.logger.Warn("zero-length frame, closing connection", "id", id)
			}
			return
		}

		c.pool.Submit(func() (any, error) {
			c.dispatch(id, msgType, payload)
			return nil, nil
		})
	}
}

func (c *Coordinator) teardownConnection(id string, conn *netconn.Connection) {
	c.registry.MarkDead(id)
	c.registry.Erase(id)
	c.readiness.MarkDead(id)
	conn.Close()

	c.connsMu.Lock()
	delete(c.conns, id)
	c.connsMu.Unlock()
}

// dispatch handles one received frame: a malformed RESOURCE_REPORT or an
// unknown tag is logged and ignored rather
// than closing the connection.
func (c *Coordinator) dispatch(id string, msgType wire.MsgType, payload []byte) {
	switch msgType {
	case wire.MsgHello:
		addr := string(payload)
		if addr == "" {
			c.logger.Warn("malformed HELLO, ignoring", "id", id)
			return
		}
		c.registry.Update(id, func(info *registry.NodeInfo) {
			info.Addr = addr
			info.LastSeen = time.Now()
		})

	case wire.MsgResourceReport:
		ram, threads, err := wire.DecodeResourceReport(payload)
		if err != nil {
			c.logger.Warn("malformed RESOURCE_REPORT, ignoring", "id", id, "error", err)
			return
		}
		c.registry.Update(id, func(info *registry.NodeInfo) {
			info.RAMBytes = ram
			info.Threads = threads
			info.LastSeen = time.Now()
			info.Alive = true
		})
		if ram > 0 {
			c.readiness.MarkReady(id)
		}

	case wire.MsgPong:
		c.registry.Update(id, func(info *registry.NodeInfo) {
			info.LastSeen = time.Now()
			info.Alive = true
		})

	case wire.MsgShutdown:
		c.registry.MarkDead(id)
		c.readiness.MarkDead(id)

	default:
		c.logger.Warn("unknown message type, ignoring", "id", id, "type", msgType)
	}
}

// heartbeatLoop pings every registered node each HeartbeatInterval and
// reaps any node whose last-seen time exceeds HeartbeatTimeout.
func (c *Coordinator) heartbeatLoop() {
	defer c.wg.Done()
	for {
		start := time.Now()
		c.heartbeatCycle()
		elapsed := time.Since(start)

		sleep := c.cfg.HeartbeatInterval - elapsed
		if sleep < 0 {
			sleep = 0
		}

		select {
		case <-c.stopped:
			return
		case <-time.After(sleep):
		}
	}
}

func (c *Coordinator) heartbeatCycle() {
	snapshot := c.registry.Snapshot()

	c.connsMu.Lock()
	for id := range snapshot {
		if conn, ok := c.conns[id]; ok {
			if err := conn.SendMessage(wire.MsgPing, nil); err != nil {
				c.logger.Warn("heartbeat ping failed", "id", id, "error", err)
			}
		}
	}
	c.connsMu.Unlock()

	now := time.Now()
	for id, info := range snapshot {
		if now.Sub(info.LastSeen) > c.cfg.HeartbeatTimeout {
			c.logger.Info("heartbeat timeout, reaping node", "id", id, "addr", info.Addr)
			c.registry.Erase(id)
			c.readiness.MarkDead(id)

			c.connsMu.Lock()
			if conn, ok := c.conns[id]; ok {
				conn.Close()
				delete(c.conns, id)
			}
			c.connsMu.Unlock()
		} else if now.Sub(info.LastSeen) > c.cfg.HeartbeatInterval {
			c.readiness.MarkStale(id)
		}
	}
}

// triggerPartition runs once per epoch, the first time the readiness
// monitor's quorum callback fires: it computes the assignment for every
// currently-Ready node and sends each one its CONFIG frame.
func (c *Coordinator) triggerPartition(_ []string) {
	c.partitionOnce.Do(func() {
		snapshot := c.registry.Snapshot()

		// Order nodes deterministically by id so Partition's tie-breaks
		// are reproducible across runs with the same registry contents.
		ids := make([]string, 0, len(snapshot))
		for id, info := range snapshot {
			if info.RAMBytes > 0 {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)

		nodes := make([]partition.NodeCompute, len(ids))
		for i, id := range ids {
			info := snapshot[id]
			nodes[i] = partition.NodeCompute{
				Addr:    info.Addr,
				RAMMb:   int64(info.RAMBytes / 1048576),
				Threads: int(info.Threads),
			}
		}

		assignments, err := partition.Partition(c.logger, nodes, c.cfg.TotalLayers, c.cfg.BytesPerLayer, partition.DefaultSafetyMemPerThreadMB)
		if err != nil {
			c.logger.Error("partitioning failed", "error", err)
			return
		}

		c.connsMu.Lock()
		defer c.connsMu.Unlock()
		for i, id := range ids {
			payload, err := wire.EncodeConfig(assignments[i])
			if err != nil {
				c.logger.Error("encoding CONFIG payload failed", "id", id, "error", err)
				continue
			}
			conn, ok := c.conns[id]
			if !ok {
				continue
			}
			if err := conn.SendMessage(wire.MsgConfig, payload); err != nil {
				c.logger.Warn("sending CONFIG failed", "id", id, "error", err)
			}
		}
	})
}

// listenTCPWithBacklog binds and listens on addr with an explicit kernel
// listen backlog. net.Listen/net.ListenConfig give no way to pass a backlog
// through to listen(2) — the standard library always derives it from
// /proc/sys/net/core/somaxconn internally — so the socket is built by hand:
// create it, enable address reuse, bind, call syscall.Listen(fd,
// listenBacklog) directly, then hand the fd to net.FileListener to get back
// an ordinary net.Listener for the accept loop to use.
func listenTCPWithBacklog(addr string, listenBacklog int) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("splitting %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	ip := net.IPv4zero
	if host != "" {
		resolved, err := net.ResolveIPAddr("ip4", host)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", host, err)
		}
		ip = resolved.IP
	}

	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	// Closed once net.FileListener has dup'd it below, or immediately on any
	// error path before that point.
	closeFd := true
	defer func() {
		if closeFd {
			syscall.Close(fd)
		}
	}()

	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	var sa syscall.SockaddrInet4
	copy(sa.Addr[:], ip.To4())
	sa.Port = port
	if err := syscall.Bind(fd, &sa); err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}

	if err := syscall.Listen(fd, listenBacklog); err != nil {
		return nil, fmt.Errorf("listen backlog %d: %w", listenBacklog, err)
	}

	file := os.NewFile(uintptr(fd), "fabric-coordinator-listener")
	ln, err := net.FileListener(file)
	file.Close() // dup'd by FileListener (on success) or not needed (on failure); either way our fd is spent here.
	closeFd = false
	if err != nil {
		return nil, fmt.Errorf("wrapping listener fd: %w", err)
	}
	return ln, nil
}
