package vision

import (
	"context"
	"fmt"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"go.opentelemetry.io/otel/attribute"
)

// FaceCounter counts faces in webcam frames with Vision FACE_DETECTION.
type FaceCounter struct {
	client *Client
}

// NewFaceCounter creates a new FaceCounter.
func NewFaceCounter(client *Client) *FaceCounter {
	return &FaceCounter{client: client}
}

// CountFaces returns the number of faces detected in image.
func (f *FaceCounter) CountFaces(parent context.Context, image []byte) (int, error) {
	ctx, span := f.client.tracer.Start(parent, "vision.count_faces")
	defer span.End()

	resp, err := f.client.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_FACE_DETECTION, MaxResults: 10}},
		}},
	})
	if err != nil {
		return 0, recordSpanError(span, fmt.Errorf("vision BatchAnnotateImages: %w", err))
	}

	faces, err := faceCountFromResponse(resp)
	if err != nil {
		return 0, recordSpanError(span, err)
	}
	span.SetAttributes(attribute.Int("faces", faces))
	return faces, nil
}

func faceCountFromResponse(resp *visionpb.BatchAnnotateImagesResponse) (int, error) {
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return 0, fmt.Errorf("vision returned no annotation")
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return 0, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return len(r0.FaceAnnotations), nil
}
