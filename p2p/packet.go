package p2p

import "encoding/json"

// Packet headers, per §4.1 "Message envelope". CONNECT/CONNECT_ACCEPTED are
// handled entirely inside this package; BROADCAST and PRIVATE are handed up
// to whatever higher layer installed callbacks via Node.OnBroadcast/OnPrivate.
const (
	HeaderConnect          = "CONNECT"
	HeaderConnectAccepted  = "CONNECT_ACCEPTED"
	HeaderBroadcast        = "BROADCAST"
	HeaderPrivate          = "PRIVATE"
)

// Addr identifies a peer by its listening host and port.
type Addr struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// envelope is the wire shape of every packet exchanged between nodes. Body
// is left as a raw JSON document because p2p has no notion of what a
// higher layer's broadcast/private payloads look like (§9 "replace
// inheritance with component + callback slots").
type envelope struct {
	Header string          `json:"header"`
	Host   string          `json:"host,omitempty"`
	Port   int             `json:"port,omitempty"`
	Nodes  []Addr          `json:"nodes,omitempty"`
	ID     string          `json:"id,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
}
