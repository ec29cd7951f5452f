package p2p

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// BroadcastHandler is invoked once per distinct broadcast id a node has not
// seen before, after it has already been relayed to neighbors. from is the
// host and port carried in the envelope; relays forward the envelope
// unchanged, so this is the original broadcaster, not the forwarding peer.
type BroadcastHandler func(from Addr, id string, body json.RawMessage)

// PrivateHandler answers a direct request from a peer and returns the body
// to send back on the same connection, or an error to close without a reply.
type PrivateHandler func(from Addr, body json.RawMessage) (interface{}, error)

// Config configures a Node. MaxNodes bounds the neighbor set (§4.2
// "a node keeps at most max_nodes neighbors"); SeenTTL, when positive,
// periodically evicts broadcast ids older than the TTL so the seen-set
// doesn't grow without bound on a long-running node (§9 open question,
// resolved in SPEC_FULL.md as an opt-in bound; zero means unbounded,
// matching the original's untouched behavior).
type Config struct {
	Host     string
	Port     int
	MaxNodes int
	SeenTTL  time.Duration
	Logger   *log.Logger
}

// Node is the peer overlay component described in §4.2: it discovers and
// keeps a bounded neighbor set, gossips BROADCAST packets with loop
// suppression, and relays PRIVATE request/response pairs. Higher layers
// (ledger, wallet) hook in via OnBroadcast/OnPrivate rather than by
// subclassing it (§9).
type Node struct {
	self Addr
	cfg  Config
	log  *log.Logger

	OnBroadcast BroadcastHandler
	OnPrivate   PrivateHandler

	neighborMu sync.Mutex
	neighbors  map[Addr]struct{}

	seenMu sync.Mutex
	seen   map[string]time.Time

	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup
}

// New builds a Node bound to cfg.Host:cfg.Port. It does not start listening
// until Start is called.
func New(cfg Config) *Node {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Node{
		self:      Addr{Host: cfg.Host, Port: cfg.Port},
		cfg:       cfg,
		log:       logger,
		neighbors: make(map[Addr]struct{}),
		seen:      make(map[string]time.Time),
		done:      make(chan struct{}),
	}
}

// Self returns the node's own advertised address. When Config.Port is 0,
// Start replaces it with the port the listener actually bound.
func (n *Node) Self() Addr { return n.self }

// Start opens the listening socket and begins accepting peer connections.
func (n *Node) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port))
	if err != nil {
		return fmt.Errorf("p2p: listen: %w", err)
	}
	n.listener = listener
	if n.self.Port == 0 {
		n.self.Port = listener.Addr().(*net.TCPAddr).Port
	}
	n.log.Info("node listening", "host", n.self.Host, "port", n.self.Port)

	n.wg.Add(1)
	go n.acceptLoop()

	if n.cfg.SeenTTL > 0 {
		n.wg.Add(1)
		go n.sweepLoop()
	}
	return nil
}

// Shutdown closes the listener and waits for in-flight handlers to finish.
func (n *Node) Shutdown() error {
	close(n.done)
	var err error
	if n.listener != nil {
		err = n.listener.Close()
	}
	n.wg.Wait()
	return err
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.done:
				return
			default:
				n.log.Error("accept failed", "err", err)
				return
			}
		}
		n.wg.Add(1)
		go n.handleConn(conn)
	}
}

func (n *Node) sweepLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.SeenTTL)
	defer ticker.Stop()
	for {
		select {
		case <-n.done:
			return
		case <-ticker.C:
			n.evictExpiredSeen()
		}
	}
}

func (n *Node) evictExpiredSeen() {
	cutoff := time.Now().Add(-n.cfg.SeenTTL)
	n.seenMu.Lock()
	defer n.seenMu.Unlock()
	for id, seenAt := range n.seen {
		if seenAt.Before(cutoff) {
			delete(n.seen, id)
		}
	}
}

func (n *Node) handleConn(conn net.Conn) {
	defer n.wg.Done()
	defer conn.Close()

	raw, err := recvFramed(conn)
	if err != nil {
		n.log.Debug("recv failed", "err", err)
		return
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		n.log.Debug("malformed packet", "err", err)
		return
	}
	from := Addr{Host: env.Host, Port: env.Port}

	switch env.Header {
	case HeaderConnect:
		n.handleConnect(conn, from)
	case HeaderConnectAccepted:
		n.handleConnectAccepted(env)
	case HeaderBroadcast:
		n.handleBroadcast(env, from)
	case HeaderPrivate:
		n.handlePrivate(conn, env, from)
	default:
		n.log.Debug("unknown header", "header", env.Header)
	}
}

// handleConnectAccepted merges an unsolicited CONNECT_ACCEPTED's nodes into
// the local neighbor set. This is the push side of neighbor discovery: a
// neighbor sends one of these whenever it accepts a new peer, or when
// refreshing after losing one, rather than only as a direct reply to our own
// CONNECT (§4.2).
func (n *Node) handleConnectAccepted(env envelope) {
	for _, addr := range env.Nodes {
		n.addNeighbor(addr)
	}
}

func (n *Node) handleConnect(conn net.Conn, from Addr) {
	existing := n.Neighbors()
	n.addNeighbor(from)
	resp := envelope{
		Header: HeaderConnectAccepted,
		Host:   n.self.Host,
		Port:   n.self.Port,
		Nodes:  existing,
	}
	if err := sendFramed(conn, resp); err != nil {
		n.log.Debug("sending CONNECT_ACCEPTED failed", "err", err)
	}
	n.announceNewcomer(existing, from)
}

// announceNewcomer tells each neighbor n already had, in parallel, about the
// peer that just connected, so the local neighborhood learns of it without a
// network-wide broadcast (§4.2 "introduces the newcomer to the local
// neighborhood").
func (n *Node) announceNewcomer(neighbors []Addr, newcomer Addr) {
	for _, peer := range neighbors {
		go func(peer Addr) {
			conn, err := dial(peer.Host, peer.Port)
			if err != nil {
				n.log.Debug("announcing newcomer failed", "host", peer.Host, "port", peer.Port, "err", err)
				return
			}
			defer conn.Close()
			env := envelope{
				Header: HeaderConnectAccepted,
				Host:   n.self.Host,
				Port:   n.self.Port,
				Nodes:  []Addr{newcomer},
			}
			if err := sendFramed(conn, env); err != nil {
				n.log.Debug("announcing newcomer failed", "host", peer.Host, "port", peer.Port, "err", err)
			}
		}(peer)
	}
}

func (n *Node) handleBroadcast(env envelope, from Addr) {
	if n.markSeen(env.ID) {
		return
	}
	n.relay(env, from)
	if n.OnBroadcast != nil {
		n.OnBroadcast(from, env.ID, env.Body)
	}
}

func (n *Node) handlePrivate(conn net.Conn, env envelope, from Addr) {
	if n.OnPrivate == nil {
		return
	}
	reply, err := n.OnPrivate(from, env.Body)
	if err != nil {
		n.log.Debug("private handler failed", "err", err)
		return
	}
	if err := sendFramed(conn, envelope{Header: HeaderPrivate, Host: n.self.Host, Port: n.self.Port, Body: mustRaw(reply)}); err != nil {
		n.log.Debug("sending PRIVATE reply failed", "err", err)
	}
}

// Connect dials a known peer at host:port, performs the CONNECT handshake,
// and registers both the peer and the peers it already knows about as
// neighbors (§4.2 "Discovery").
func (n *Node) Connect(host string, port int) error {
	conn, err := dial(host, port)
	if err != nil {
		return fmt.Errorf("p2p: connecting to %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	req := envelope{Header: HeaderConnect, Host: n.self.Host, Port: n.self.Port}
	if err := sendFramed(conn, req); err != nil {
		return fmt.Errorf("p2p: sending CONNECT: %w", err)
	}

	raw, err := recvFramed(conn)
	if err != nil {
		return fmt.Errorf("p2p: awaiting CONNECT_ACCEPTED: %w", err)
	}
	var resp envelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("p2p: decoding CONNECT_ACCEPTED: %w", err)
	}
	if resp.Header != HeaderConnectAccepted {
		return fmt.Errorf("p2p: expected CONNECT_ACCEPTED, got %q", resp.Header)
	}

	n.addNeighbor(Addr{Host: host, Port: port})
	for _, addr := range resp.Nodes {
		if addr != n.self {
			n.addNeighbor(addr)
		}
	}
	return nil
}

// Broadcast gossips body to every neighbor with a fresh id, marking it seen
// locally so an echoed copy routed back through the mesh is dropped.
func (n *Node) Broadcast(body interface{}) error {
	id, err := newPacketID()
	if err != nil {
		return err
	}
	n.markSeen(id)
	env := envelope{Header: HeaderBroadcast, Host: n.self.Host, Port: n.self.Port, ID: id, Body: mustRaw(body)}
	n.relay(env, n.self)
	return nil
}

// Send opens a one-shot connection to host:port, makes a PRIVATE request
// carrying body, and returns the responder's reply body.
func (n *Node) Send(host string, port int, body interface{}) (json.RawMessage, error) {
	conn, err := dial(host, port)
	if err != nil {
		return nil, fmt.Errorf("p2p: connecting to %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	req := envelope{Header: HeaderPrivate, Host: n.self.Host, Port: n.self.Port, Body: mustRaw(body)}
	if err := sendFramed(conn, req); err != nil {
		return nil, fmt.Errorf("p2p: sending PRIVATE: %w", err)
	}

	raw, err := recvFramed(conn)
	if err != nil {
		return nil, fmt.Errorf("p2p: awaiting PRIVATE reply: %w", err)
	}
	var resp envelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("p2p: decoding PRIVATE reply: %w", err)
	}
	return resp.Body, nil
}

// relay forwards env to every neighbor except from (the envelope's original
// broadcaster), dropping neighbors that have gone unreachable (§4.2 "dead peer eviction").
func (n *Node) relay(env envelope, from Addr) {
	for _, peer := range n.Neighbors() {
		if peer == from {
			continue
		}
		go func(peer Addr) {
			conn, err := dial(peer.Host, peer.Port)
			if err != nil {
				n.log.Debug("peer unreachable, evicting", "host", peer.Host, "port", peer.Port)
				n.removeNeighbor(peer)
				n.refreshNeighbors()
				return
			}
			defer conn.Close()
			if err := sendFramed(conn, env); err != nil {
				n.log.Debug("relay failed", "host", peer.Host, "port", peer.Port, "err", err)
			}
		}(peer)
	}
}

// refreshNeighbors re-runs the CONNECT handshake against every surviving
// neighbor after one is evicted, so the mesh re-converges around whatever
// neighbor lists the survivors currently hold (§4.2/§7 "triggers a CONNECT
// refresh to surviving neighbors").
func (n *Node) refreshNeighbors() {
	for _, peer := range n.Neighbors() {
		go func(peer Addr) {
			if err := n.Connect(peer.Host, peer.Port); err != nil {
				n.log.Debug("neighbor refresh failed", "host", peer.Host, "port", peer.Port, "err", err)
			}
		}(peer)
	}
}

// Neighbors returns a snapshot of the current neighbor set.
func (n *Node) Neighbors() []Addr {
	n.neighborMu.Lock()
	defer n.neighborMu.Unlock()
	out := make([]Addr, 0, len(n.neighbors))
	for addr := range n.neighbors {
		out = append(out, addr)
	}
	return out
}

func (n *Node) addNeighbor(addr Addr) {
	if addr == n.self {
		return
	}
	n.neighborMu.Lock()
	defer n.neighborMu.Unlock()
	if _, ok := n.neighbors[addr]; ok {
		return
	}
	if n.cfg.MaxNodes > 0 && len(n.neighbors) >= n.cfg.MaxNodes {
		return
	}
	n.neighbors[addr] = struct{}{}
}

func (n *Node) removeNeighbor(addr Addr) {
	n.neighborMu.Lock()
	defer n.neighborMu.Unlock()
	delete(n.neighbors, addr)
}

// markSeen reports whether id was already seen, marking it seen either way.
func (n *Node) markSeen(id string) bool {
	n.seenMu.Lock()
	defer n.seenMu.Unlock()
	_, already := n.seen[id]
	n.seen[id] = time.Now()
	return already
}

func newPacketID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("p2p: generating packet id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// mustRaw marshals v into a json.RawMessage. v is always one of our own
// envelope/body types, so a marshal failure here would be a programming
// error, not a runtime condition callers need to recover from.
func mustRaw(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("p2p: marshaling body: %v", err))
	}
	return raw
}
