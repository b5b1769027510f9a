package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-monitor/pkg/errors"
	"github.com/feichai0017/document-monitor/pkg/logger"
)

type TesseractOptions struct {
	Language    []string
	PageSegMode gosseract.PageSegMode
	Preprocess  *PreprocessConfig
}

type PreprocessConfig struct {
	AdaptiveBlockSize int
	AdaptiveConstant  float64
	Denoise           bool
	DenoiseStrength   float64
	Sharpen           bool
	SharpenStrength   float64
	ContrastNormalize bool
}

func DefaultTesseractOptions() *TesseractOptions {
	return &TesseractOptions{
		Language:    []string{"eng"},
		PageSegMode: gosseract.PSM_AUTO,
		Preprocess: &PreprocessConfig{
			AdaptiveBlockSize: 11,
			AdaptiveConstant:  2,
			Denoise:           true,
			DenoiseStrength:   0.5,
			Sharpen:           true,
			SharpenStrength:   0.5,
			ContrastNormalize: true,
		},
	}
}

// TesseractEngine runs local tesseract through gosseract. A client is not
// safe for concurrent use, so each call gets its own.
type TesseractEngine struct {
	opts          *TesseractOptions
	preprocessors []ImagePreprocessor
	logger        logger.Logger
}

func NewTesseractEngine(opts *TesseractOptions, log logger.Logger) (*TesseractEngine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts == nil {
		opts = DefaultTesseractOptions()
	}
	if len(opts.Language) == 0 {
		opts.Language = []string{"eng"}
	}

	var pre []ImagePreprocessor
	if pc := opts.Preprocess; pc != nil {
		pre = append(pre, NewGrayscaleProcessor())
		if pc.Denoise {
			pre = append(pre, NewDenoiseProcessor(pc.DenoiseStrength))
		}
		if pc.ContrastNormalize {
			pre = append(pre, NewContrastNormalizationProcessor())
		}
		if pc.AdaptiveBlockSize > 0 {
			pre = append(pre, NewAdaptiveThresholdProcessor(pc.AdaptiveBlockSize, pc.AdaptiveConstant))
		}
		if pc.Sharpen {
			pre = append(pre, NewSharpenProcessor(pc.SharpenStrength))
		}
	}

	log.Info("Tesseract OCR engine ready",
		logger.String("version", gosseract.Version()),
		logger.Strings("languages", opts.Language),
	)
	return &TesseractEngine{opts: opts, preprocessors: pre, logger: log.Named("tesseract")}, nil
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	img, err = ApplyPreprocessing(img, e.preprocessors)
	if err != nil {
		return "", fmt.Errorf("failed to preprocess image: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.opts.Language...); err != nil {
		return "", errors.Mark(fmt.Errorf("failed to set language: %w", err), ErrUnavailable)
	}
	if err := client.SetPageSegMode(e.opts.PageSegMode); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		// missing tessdata surfaces as an init failure on first use
		if strings.Contains(err.Error(), "initialize") {
			return "", errors.Mark(err, ErrUnavailable)
		}
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return text, nil
}

func (e *TesseractEngine) Close() error { return nil }

// ApplyPreprocessing runs img through each preprocessor in order.
func ApplyPreprocessing(img image.Image, pre []ImagePreprocessor) (image.Image, error) {
	var err error
	for _, p := range pre {
		if img, err = p.Process(img); err != nil {
			return nil, err
		}
	}
	return img, nil
}
