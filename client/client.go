package client

import (
	"context"

	"github.com/ava-labs/avalanchego/utils/rpc"

	"github.com/ava-labs/replayvm/replayvm"
)

// Client defines replayvm results-service client operations.
type Client interface {
	// LastRun fetches the summary of the most recent persisted run
	LastRun(ctx context.Context) (*replayvm.LastRunReply, error)

	// GetResult fetches the persisted outcome of one vector
	GetResult(ctx context.Context, vectorID string) (*replayvm.GetResultReply, error)

	// CostModel fetches the cost model fitted by the most recent run
	CostModel(ctx context.Context) (*replayvm.ModelReply, error)
}

// New creates a new client object.
func New(uri string) Client {
	req := rpc.NewEndpointRequester(uri, "", "replayvm")
	return &client{req: req}
}

type client struct {
	req rpc.EndpointRequester
}

func (cli *client) LastRun(ctx context.Context) (*replayvm.LastRunReply, error) {
	resp := new(replayvm.LastRunReply)
	err := cli.req.SendRequest(ctx,
		"lastRun",
		&struct{}{},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (cli *client) CostModel(ctx context.Context) (*replayvm.ModelReply, error) {
	resp := new(replayvm.ModelReply)
	err := cli.req.SendRequest(ctx,
		"costModel",
		&struct{}{},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (cli *client) GetResult(ctx context.Context, vectorID string) (*replayvm.GetResultReply, error) {
	resp := new(replayvm.GetResultReply)
	err := cli.req.SendRequest(ctx,
		"getResult",
		&replayvm.GetResultArgs{VectorID: vectorID},
		resp,
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
