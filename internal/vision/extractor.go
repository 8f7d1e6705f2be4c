package vision

import (
	"context"
	"fmt"
	"strings"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stemsi/secureeval-backend/internal/model"
)

// Synchronous file annotation handles at most five pages per request.
var pdfPages = []int32{1, 2, 3, 4, 5}

// QuestionExtractor recovers draft questions from an exam paper using Vision
// DOCUMENT_TEXT_DETECTION and the numbered-question parser.
type QuestionExtractor struct {
	client *Client
}

// NewQuestionExtractor creates a new QuestionExtractor.
func NewQuestionExtractor(client *Client) *QuestionExtractor {
	return &QuestionExtractor{client: client}
}

// Extract runs OCR over an image or PDF and parses the text into questions.
func (e *QuestionExtractor) Extract(parent context.Context, data []byte, mimeType string) (*model.ExtractionResult, error) {
	ctx, span := e.client.tracer.Start(parent, "vision.extract_questions")
	defer span.End()
	span.SetAttributes(attribute.String("mime_type", mimeType))

	var (
		text string
		err  error
	)
	if mimeType == "application/pdf" {
		text, err = e.ocrPDF(ctx, data)
	} else {
		text, err = e.ocrImage(ctx, data)
	}
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, recordSpanError(span, fmt.Errorf("no text found in document"))
	}

	result := ParseQuestions(text)
	span.SetAttributes(attribute.Int("questions", len(result.Questions)))
	e.client.log.Info().Int("questions", len(result.Questions)).Str("mime", mimeType).Msg("Questions extracted")
	return result, nil
}

func (e *QuestionExtractor) ocrImage(ctx context.Context, data []byte) (string, error) {
	resp, err := e.client.annotator.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 {
		return "", nil
	}
	return textFromResponses(resp.Responses)
}

func (e *QuestionExtractor) ocrPDF(ctx context.Context, data []byte) (string, error) {
	resp, err := e.client.annotator.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{{
			InputConfig: &visionpb.InputConfig{Content: data, MimeType: "application/pdf"},
			Features:    []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			Pages:       pdfPages,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateFiles: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return "", nil
	}
	if ferr := resp.Responses[0].Error; ferr != nil && ferr.Message != "" {
		return "", fmt.Errorf("vision annotate error: %s", ferr.Message)
	}
	return textFromResponses(resp.Responses[0].Responses)
}

// textFromResponses joins the full-text annotation of every page.
func textFromResponses(pages []*visionpb.AnnotateImageResponse) (string, error) {
	var b strings.Builder
	for _, p := range pages {
		if p == nil {
			continue
		}
		if p.Error != nil && p.Error.Message != "" {
			return "", fmt.Errorf("vision annotate error: %s", p.Error.Message)
		}
		if p.FullTextAnnotation == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.FullTextAnnotation.Text)
	}
	return b.String(), nil
}
