package gateway

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// Bridge command names.
const (
	cmdSubscribe = "subscribe"
	cmdStart     = "start"
	cmdStop      = "stop"
)

// Response and push message types.
const (
	typeOK       = "ok"
	typeError    = "error"
	typeMetadata = "metadata"
)

// Command is a text frame sent to the bridge.
type Command struct {
	ID     int64       `json:"id"`
	Cmd    string      `json:"cmd"`
	Params interface{} `json:"params,omitempty"`
}

// SubscribeParams are parameters for a subscribe command.
type SubscribeParams struct {
	Dataset  string   `json:"dataset"`
	Schema   string   `json:"schema"`
	STypeIn  string   `json:"stype_in"`
	Symbols  []string `json:"symbols"`
	Start    *uint64  `json:"start,omitempty"` // nil for live; 0 replays from the epoch
	Snapshot bool     `json:"snapshot,omitempty"`
}

// Response is a text frame from the bridge. Command replies carry the
// command ID; pushed metadata and errors have ID 0.
type Response struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Code int             `json:"code,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

// text returns Msg as a string, unquoting a JSON string value.
func (r Response) text() string {
	var s string
	if err := json.Unmarshal(r.Msg, &s); err == nil {
		return s
	}
	return string(r.Msg)
}

func newSubscribeParams(req Request, start *uint64, snapshot bool) SubscribeParams {
	return SubscribeParams{
		Dataset:  req.Dataset,
		Schema:   req.Schema.String(),
		STypeIn:  req.STypeIn.String(),
		Symbols:  req.Symbols,
		Start:    start,
		Snapshot: snapshot,
	}
}

// sessionURL appends the session parameters to the bridge URL.
func sessionURL(base string, cfg Config) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("dataset", cfg.Dataset)
	q.Set("ts_out", strconv.FormatBool(cfg.SendTsOut))
	q.Set("upgrade_policy", cfg.UpgradePolicy.String())
	if cfg.HeartbeatInterval > 0 {
		q.Set("heartbeat_interval_s", strconv.Itoa(int(cfg.HeartbeatInterval/time.Second)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
