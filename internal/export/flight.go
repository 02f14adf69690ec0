package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/contextwatch/internal/inference"
	"github.com/23skdu/contextwatch/internal/logger"
)

// DescriptorRoot is the first path element of every uploaded flight.
const DescriptorRoot = "contextwatch"

// FlightPublisher uploads run snapshots with DoPut.
type FlightPublisher struct {
	addr   string
	client flight.Client
}

// NewFlightPublisher dials addr lazily; errors surface on the first Publish.
func NewFlightPublisher(addr string) (*FlightPublisher, error) {
	client, err := flight.NewClientWithMiddleware(addr, nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create Flight client: %w", err)
	}
	return &FlightPublisher{addr: addr, client: client}, nil
}

func (p *FlightPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Descriptor is the flight path for a run: ["contextwatch", runID].
func Descriptor(runID string) *flight.FlightDescriptor {
	return &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{DescriptorRoot, runID},
	}
}

// Publish sends the run as one record batch and waits for the server to
// acknowledge the stream.
func (p *FlightPublisher) Publish(ctx context.Context, res *inference.Result) error {
	if p.client == nil {
		return fmt.Errorf("client not connected")
	}

	mem := memory.NewGoAllocator()
	rec, err := BuildRecord(mem, res)
	if err != nil {
		return err
	}
	defer rec.Release()

	stream, err := p.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}

	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	w.SetFlightDescriptor(Descriptor(res.RunID))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}

	acks := 0
	for {
		_, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("DoPut failed: %w", err)
		}
		acks++
	}

	logger.Log.Info("Published step snapshots", "addr", p.addr, "run_id", res.RunID,
		"rows", rec.NumRows(), "acks", acks)
	return nil
}
