package agentsession

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arkeep-io/fleethub/internal/fleetdb"
	"github.com/arkeep-io/fleethub/internal/rpc"
)

// AgentGetInfoResponse is the agent_getInfo result.
type AgentGetInfoResponse struct {
	Name                    string `json:"name"`
	Status                  string `json:"status"`
	Address                 string `json:"address,omitempty"`
	CodechainCommitHash     string `json:"codechainCommitHash"`
	CodechainBinaryChecksum string `json:"codechainBinaryChecksum"`
}

// ShellStartCodeChainRequest is shell_startCodeChain's argument.
type ShellStartCodeChainRequest struct {
	Env  string `json:"env"`
	Args string `json:"args"`
}

// ShellUpdateCodeChainRequest is shell_updateCodeChain's two-element
// positional argument: a start option plus exactly one of Git/Binary update
// source.
type ShellUpdateCodeChainRequest struct {
	Start  ShellStartCodeChainRequest
	Git    *GitUpdate
	Binary *BinaryUpdate
}

type GitUpdate struct {
	CommitHash string `json:"commitHash"`
}

type BinaryUpdate struct {
	BinaryURL      string `json:"binaryUrl"`
	BinaryChecksum string `json:"binaryChecksum"`
}

func (r ShellUpdateCodeChainRequest) MarshalJSON() ([]byte, error) {
	var source any
	switch {
	case r.Git != nil:
		source = struct {
			Type       string `json:"type"`
			CommitHash string `json:"commitHash"`
		}{"Git", r.Git.CommitHash}
	case r.Binary != nil:
		source = struct {
			Type           string `json:"type"`
			BinaryURL      string `json:"binaryUrl"`
			BinaryChecksum string `json:"binaryChecksum"`
		}{"Binary", r.Binary.BinaryURL, r.Binary.BinaryChecksum}
	default:
		return nil, fmt.Errorf("agentsession: update request needs Git or Binary source")
	}
	return json.Marshal([2]any{r.Start, source})
}

// CodeChainRPC is the set of outbound calls the session issues over the
// agent socket.
type CodeChainRPC struct {
	conn *rpc.Conn
}

func NewCodeChainRPC(conn *rpc.Conn) *CodeChainRPC { return &CodeChainRPC{conn: conn} }

func (c *CodeChainRPC) call(ctx context.Context, method string, params any, out any) error {
	raw, err := c.conn.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *CodeChainRPC) AgentGetInfo(ctx context.Context) (AgentGetInfoResponse, error) {
	var resp AgentGetInfoResponse
	err := c.call(ctx, "agent_getInfo", struct{}{}, &resp)
	return resp, err
}

func (c *CodeChainRPC) ShellStartCodeChain(ctx context.Context, req ShellStartCodeChainRequest) error {
	return c.call(ctx, "shell_startCodeChain", req, nil)
}

func (c *CodeChainRPC) ShellStopCodeChain(ctx context.Context) error {
	return c.call(ctx, "shell_stopCodeChain", struct{}{}, nil)
}

func (c *CodeChainRPC) ShellUpdateCodeChain(ctx context.Context, req ShellUpdateCodeChainRequest) error {
	return c.call(ctx, "shell_updateCodeChain", req, nil)
}

func (c *CodeChainRPC) ShellGetCodeChainLog(ctx context.Context, levels []string) ([]fleetdb.StructuredLog, error) {
	var logs []fleetdb.StructuredLog
	err := c.call(ctx, "shell_getCodeChainLog", struct {
		Levels []string `json:"levels"`
	}{levels}, &logs)
	return logs, err
}

func (c *CodeChainRPC) HardwareGet(ctx context.Context) (fleetdb.HardwareInfo, error) {
	var hw fleetdb.HardwareInfo
	err := c.call(ctx, "hardware_get", struct{}{}, &hw)
	return hw, err
}

// codeChainCallRPCResponse is codechain_callRPC's wire result shape: the
// agent's own JSON-RPC round trip to the underlying CodeChain node,
// returned opaquely as its raw JSON-RPC output envelope.
type codeChainCallRPCResponse struct {
	InnerResponse json.RawMessage `json:"innerResponse"`
}

// jsonrpcOutput is the minimal shape of a JSON-RPC response body: either a
// success carrying "result" or a failure carrying "error".
type jsonrpcOutput struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpc.Error      `json:"error,omitempty"`
}

// CallRPC forwards (method, params) to the node behind the agent via the
// single codechain_callRPC wire method. Every chain-facing query below is
// a thin wrapper over it — none of them is a wire method of its own.
func (c *CodeChainRPC) CallRPC(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
	var resp codeChainCallRPCResponse
	if err := c.call(ctx, "codechain_callRPC", [2]any{method, params}, &resp); err != nil {
		return nil, err
	}
	var out jsonrpcOutput
	if err := json.Unmarshal(resp.InnerResponse, &out); err != nil {
		return nil, fmt.Errorf("agentsession: decode codechain_callRPC inner response for %q: %w", method, err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("agentsession: codechain %s: %w", method, out.Error)
	}
	return out.Result, nil
}

func (c *CodeChainRPC) callRPCInto(ctx context.Context, method string, params []any, out any) error {
	raw, err := c.CallRPC(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// GetEstablishedPeers and the calls below it return established peer set,
// best block, network facts, etc. — only meaningful when the node's status
// is Run; callers must gate on status themselves and use the zero value
// otherwise.
func (c *CodeChainRPC) GetEstablishedPeers(ctx context.Context) ([]string, error) {
	var peers []string
	err := c.callRPCInto(ctx, "net_getEstablishedPeers", nil, &peers)
	return peers, err
}

func (c *CodeChainRPC) GetBestBlockID(ctx context.Context) (*fleetdb.BlockID, error) {
	var id *fleetdb.BlockID
	if err := c.callRPCInto(ctx, "chain_getBestBlockId", nil, &id); err != nil {
		return nil, err
	}
	return id, nil
}

func (c *CodeChainRPC) Version(ctx context.Context) (string, error) {
	var v string
	err := c.callRPCInto(ctx, "version", nil, &v)
	return v, err
}

func (c *CodeChainRPC) CommitHash(ctx context.Context) (string, error) {
	var h string
	err := c.callRPCInto(ctx, "commitHash", nil, &h)
	return h, err
}

func (c *CodeChainRPC) GetPendingTransactions(ctx context.Context) ([]string, error) {
	var pending []string
	err := c.callRPCInto(ctx, "chain_getPendingParcels", nil, &pending)
	return pending, err
}

func (c *CodeChainRPC) GetWhitelist(ctx context.Context) (fleetdb.NameList, error) {
	var nl fleetdb.NameList
	err := c.callRPCInto(ctx, "net_getWhitelist", nil, &nl)
	return nl, err
}

func (c *CodeChainRPC) GetBlacklist(ctx context.Context) (fleetdb.NameList, error) {
	var nl fleetdb.NameList
	err := c.callRPCInto(ctx, "net_getBlacklist", nil, &nl)
	return nl, err
}

// GetNetworkUsage returns per-(extension,targetIP) byte counts for the
// interval since the last call, or nil if the agent has none to report.
func (c *CodeChainRPC) GetNetworkUsage(ctx context.Context) ([]NetworkUsageSample, error) {
	var samples []NetworkUsageSample
	err := c.callRPCInto(ctx, "net_getNetworkUsage", nil, &samples)
	return samples, err
}

type NetworkUsageSample struct {
	Extension string `json:"extension"`
	TargetIP  string `json:"targetIp"`
	Bytes     int64  `json:"bytes"`
}

func (c *CodeChainRPC) GetNetworkID(ctx context.Context) (string, error) {
	var id string
	err := c.callRPCInto(ctx, "net_getNetworkId", nil, &id)
	return id, err
}
