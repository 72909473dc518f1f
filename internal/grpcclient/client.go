package grpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/face-verify/internal/domain"
	"github.com/example/face-verify/internal/imageprocessor"
	"github.com/example/face-verify/internal/logging"
)

// RepresentMethod is the unary RPC the inference server exposes. It takes the
// JPEG bytes as google.protobuf.BytesValue and answers with a
// google.protobuf.Struct of the form
//
//	{"faces": [{"embedding": [...], "facial_area": {"x":..,"y":..,"w":..,"h":..}, "confidence": ..}]}
const RepresentMethod = "/facematch.v1.FaceEmbedder/Represent"

// DialImageProcessor connects to the inference server and blocks until the
// connection is ready or the dial times out.
func DialImageProcessor(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (imageprocessor.Client, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	}, opts...)

	conn, err := grpc.DialContext(dialCtx, addr, dialOpts...)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_image_processor", "", err)
		logger.Error("failed to dial image processor", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewImageProcessor(conn, logger), conn, nil
}

// NewImageProcessor uses an existing connection.
func NewImageProcessor(conn grpc.ClientConnInterface, logger *zap.Logger) imageprocessor.Client {
	return &grpcImageProcessor{conn: conn, logger: logger.Named("grpc_image_processor")}
}

type grpcImageProcessor struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

type representResponse struct {
	Faces []struct {
		Embedding  []float64 `json:"embedding"`
		Confidence float64   `json:"confidence"`
		FacialArea struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
			W float64 `json:"w"`
			H float64 `json:"h"`
		} `json:"facial_area"`
	} `json:"faces"`
}

func (g *grpcImageProcessor) Represent(ctx context.Context, image []byte) ([]imageprocessor.DetectedFace, error) {
	out := new(structpb.Struct)
	if err := g.conn.Invoke(ctx, RepresentMethod, wrapperspb.Bytes(image), out); err != nil {
		if status.Code(err) == codes.InvalidArgument {
			return nil, domain.ErrInvalidImage.WithError(err)
		}
		if status.Code(err) == codes.DeadlineExceeded {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		wrapped := logging.NewOperationError("grpcclient.represent", "", err)
		g.logger.Error("image processor call failed", zap.Error(wrapped))
		return nil, wrapped
	}

	raw, err := protojson.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode represent response: %w", err)
	}
	var resp representResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.ErrInternal.WithMessage("malformed represent response: %v", err)
	}

	faces := make([]imageprocessor.DetectedFace, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, imageprocessor.DetectedFace{
			Box: imageprocessor.BoundingBox{
				X:      int(f.FacialArea.X),
				Y:      int(f.FacialArea.Y),
				Width:  int(f.FacialArea.W),
				Height: int(f.FacialArea.H),
			},
			Confidence: f.Confidence,
			Embedding:  f.Embedding,
		})
	}
	return faces, nil
}
