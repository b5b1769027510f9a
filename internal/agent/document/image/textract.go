package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	cfg "github.com/feichai0017/document-monitor/config"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

type TextractEngine struct {
	client        TextractAPI
	minConfidence float32
	logger        logger.Logger
}

func NewTextractEngine(ctx context.Context, tc cfg.TextractConfig, log logger.Logger) (*TextractEngine, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(tc.Region)}
	if tc.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			tc.AccessKey,
			tc.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := textract.NewFromConfig(awsCfg, func(o *textract.Options) {
		if tc.Endpoint != "" {
			o.BaseEndpoint = aws.String(tc.Endpoint)
		}
	})
	return NewTextractEngineWithClient(client, log), nil
}

func NewTextractEngineWithClient(client TextractAPI, log logger.Logger) *TextractEngine {
	return &TextractEngine{client: client, minConfidence: 50, logger: log.Named("textract")}
}

func (e *TextractEngine) Name() string { return "textract" }

// Recognize returns the detected LINE blocks. A vertical gap wider than one
// and a half line heights starts a new paragraph.
func (e *TextractEngine) Recognize(ctx context.Context, img []byte) (string, error) {
	out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: img},
	})
	if err != nil {
		return "", fmt.Errorf("failed to detect document text: %w", err)
	}
	return e.linesToText(out.Blocks), nil
}

func (e *TextractEngine) linesToText(blocks []types.Block) string {
	var sb strings.Builder
	var prevBottom, prevHeight float32
	first := true

	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < e.minConfidence {
			continue
		}

		var top, height float32
		if block.Geometry != nil && block.Geometry.BoundingBox != nil {
			top = block.Geometry.BoundingBox.Top
			height = block.Geometry.BoundingBox.Height
		}

		if !first {
			if prevHeight > 0 && top-prevBottom > prevHeight*1.5 {
				sb.WriteString("\n\n")
			} else {
				sb.WriteString("\n")
			}
		}
		sb.WriteString(*block.Text)
		prevBottom, prevHeight = top+height, height
		first = false
	}
	return sb.String()
}

func (e *TextractEngine) Close() error { return nil }
