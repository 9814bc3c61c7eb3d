// Based on https://github.com/OpenFogStack/FReD/blob/main/tests/AlexandraTest/cmd/pkg/client/alexandraclient.go
package fredclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"git.tu-berlin.de/mcc-fred/fred/proto/middleware"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// TLSFiles locates the mTLS material for the middleware connection.
type TLSFiles struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

type AlexandraClient struct {
	conn   *grpc.ClientConn
	client middleware.MiddlewareClient
}

func loadTLS(files TLSFiles) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("cannot load client certificates: %w", err)
	}

	rootCAs := x509.NewCertPool()
	loaded, err := os.ReadFile(files.CAFile)
	if err != nil {
		return nil, fmt.Errorf("cannot read CA certificate file: %w", err)
	}
	if !rootCAs.AppendCertsFromPEM(loaded) {
		return nil, fmt.Errorf("failed to append CA certificate %s to the pool", files.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		RootCAs:      rootCAs,
	}, nil
}

// NewAlexandraClient prepares a gRPC client for the FReD middleware at
// address. The connection is established lazily on first use.
func NewAlexandraClient(address string, files TLSFiles) (*AlexandraClient, error) {
	tlsConfig, err := loadTLS(files)
	if err != nil {
		log.Error().Err(err).Msg("Cannot set up FReD TLS")
		return nil, err
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		log.Error().Err(err).Msg("Cannot create gRPC connection")
		return nil, fmt.Errorf("cannot create gRPC connection to %s: %w", address, err)
	}

	return &AlexandraClient{
		conn:   conn,
		client: middleware.NewMiddlewareClient(conn),
	}, nil
}

func (c *AlexandraClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *AlexandraClient) CreateKeygroup(ctx context.Context, firstNodeID, kgname string, mutable bool, expiry int64) error {
	log.Debug().Msgf("CreateKeygroup: %s, %s, %t, %d", firstNodeID, kgname, mutable, expiry)
	_, err := c.client.CreateKeygroup(ctx, &middleware.CreateKeygroupRequest{
		Keygroup:    kgname,
		Mutable:     mutable,
		Expiry:      expiry,
		FirstNodeId: firstNodeID,
	})
	if err != nil {
		log.Warn().Err(err).Msgf("CreateKeygroup %s failed", kgname)
		return fmt.Errorf("create keygroup %s: %w", kgname, err)
	}
	return nil
}

func (c *AlexandraClient) Update(ctx context.Context, kgname, id, data string) error {
	log.Debug().Msgf("Update: %s, %s, %d bytes", kgname, id, len(data))
	_, err := c.client.Update(ctx, &middleware.UpdateRequest{
		Keygroup: kgname,
		Id:       id,
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", kgname, id, err)
	}
	return nil
}

// Read returns every version of id held by the middleware.
func (c *AlexandraClient) Read(ctx context.Context, kgname, id string, minExpiry int64) ([]string, error) {
	log.Debug().Msgf("Read: %s, %s, %d", kgname, id, minExpiry)

	res, err := c.client.Read(ctx, &middleware.ReadRequest{
		Keygroup:  kgname,
		Id:        id,
		MinExpiry: minExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", kgname, id, err)
	}

	vals := make([]string, len(res.Items))
	for i := range res.Items {
		vals[i] = res.Items[i].Val
	}
	return vals, nil
}
