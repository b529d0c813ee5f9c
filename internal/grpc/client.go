package grpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// CheckResult is the decoded answer of Authorize and Reserve
type CheckResult struct {
	Allowed   bool
	Remaining int64
	Current   int64
	Limit     int64
}

// UsageMeta is optional operation metadata sent with Reserve and Commit
type UsageMeta struct {
	FileID string
	Action string
	Extra  map[string]interface{}
}

// Client is the metering client used by processing workers
type Client struct {
	conn *grpc.ClientConn
}

// Creates a new metering client
func NewClient(addr string, useTLS bool, opts ...grpc.DialOption) (*Client, error) {
	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(
		addr,
		append(opts,
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                30 * time.Second,
				Timeout:             10 * time.Second,
				PermitWithoutStream: false,
			}),
		)...,
	)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn}, nil
}

// Authorize asks whether the user may consume amount of the limit
func (c *Client) Authorize(ctx context.Context, userID uuid.UUID, limit string, amount int64) (*CheckResult, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"user_id": userID.String(),
		"limit":   limit,
		"amount":  amount,
	})
	if err != nil {
		return nil, err
	}
	return c.check(ctx, authorizeMethod, req)
}

// Reserve atomically consumes amount of the limit when it fits
func (c *Client) Reserve(ctx context.Context, userID uuid.UUID, limit string, amount int64, meta UsageMeta) (*CheckResult, error) {
	fields := meta.fields()
	fields["user_id"] = userID.String()
	fields["limit"] = limit
	fields["amount"] = amount

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	return c.check(ctx, reserveMethod, req)
}

// Commit records consumed usage of the given kind
func (c *Client) Commit(ctx context.Context, userID uuid.UUID, kind string, amount int64, meta UsageMeta) error {
	fields := meta.fields()
	fields["user_id"] = userID.String()
	fields["kind"] = kind
	fields["amount"] = amount

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, commitMethod, req, new(structpb.Struct))
}

// Healthy reports whether the metering service answers SERVING
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: MeteringServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) check(ctx context.Context, method string, req *structpb.Struct) (*CheckResult, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return &CheckResult{
		Allowed:   out.GetFields()["allowed"].GetBoolValue(),
		Remaining: int64Field(out, "remaining"),
		Current:   int64Field(out, "current"),
		Limit:     int64Field(out, "limit"),
	}, nil
}

func (m UsageMeta) fields() map[string]interface{} {
	fields := map[string]interface{}{}
	if m.FileID != "" {
		fields["file_id"] = m.FileID
	}
	if m.Action != "" {
		fields["action"] = m.Action
	}
	if len(m.Extra) > 0 {
		fields["extra"] = m.Extra
	}
	return fields
}

// Closes the gRPC connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
